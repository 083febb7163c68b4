package dispatch

import (
	"strings"
	"time"

	"github.com/dkoutsos/agency/internal/domain"
)

// complexityKeywords maps description vocabulary to complexity votes.
var complexityKeywords = map[domain.Complexity][]string{
	domain.ComplexityLow:      {"simple", "basic", "quick", "straightforward"},
	domain.ComplexityMedium:   {"moderate", "standard", "typical", "regular"},
	domain.ComplexityHigh:     {"complex", "advanced", "detailed", "comprehensive"},
	domain.ComplexityCritical: {"urgent", "critical", "emergency", "priority"},
}

// taskTypeCapabilities maps a declared task type to its default capability
// requirements.
var taskTypeCapabilities = map[string][]string{
	"content_creation":     {"content_creation", "writing", "creativity"},
	"data_analysis":        {"data_analysis", "statistics", "visualization"},
	"software_development": {"programming", "system_design", "testing"},
	"market_research":      {"research", "analysis", "report_generation"},
	"customer_support":     {"communication", "problem_solving", "empathy"},
	"financial_analysis":   {"financial_modeling", "accounting", "forecasting"},
	"marketing_campaign":   {"marketing", "creativity", "analytics"},
	"sales_support":        {"sales", "communication", "persuasion"},
}

// taskTypeKeywords infers a task type from description vocabulary when the
// submitter does not declare one.
var taskTypeKeywords = map[string][]string{
	"content_creation":     {"article", "blog", "write", "content", "copy"},
	"data_analysis":        {"analyze", "data", "metrics", "statistics", "trends"},
	"software_development": {"code", "implement", "bug", "feature", "api"},
	"market_research":      {"research", "market", "competitor", "survey"},
	"customer_support":     {"customer", "support", "ticket", "complaint"},
	"financial_analysis":   {"financial", "budget", "forecast", "revenue model"},
	"marketing_campaign":   {"campaign", "marketing", "promotion", "launch"},
	"sales_support":        {"sales", "lead", "proposal", "pitch"},
}

// defaultEffortHours is the effort estimate per complexity when the
// submitter provides none.
var defaultEffortHours = map[domain.Complexity]float64{
	domain.ComplexityLow:      2,
	domain.ComplexityMedium:   6,
	domain.ComplexityHigh:     16,
	domain.ComplexityCritical: 24,
}

// analyzeTask fills in the fields a submitter may omit: task type, required
// capabilities, complexity and effort estimate, derived from description
// keywords and the deadline.
func analyzeTask(task *domain.Task, now time.Time) {
	text := strings.ToLower(task.Title + " " + task.Description)

	if task.Type == "" {
		task.Type = inferTaskType(text)
	}
	if len(task.Requirements.RequiredCapabilities) == 0 {
		if caps, ok := taskTypeCapabilities[task.Type]; ok {
			task.Requirements.RequiredCapabilities = append([]string(nil), caps...)
		}
	}
	if task.Complexity == "" {
		task.Complexity = inferComplexity(text, task, now)
	}
	if task.EstimatedHours == 0 {
		task.EstimatedHours = defaultEffortHours[task.Complexity]
	}
}

func inferTaskType(text string) string {
	bestType := "general"
	bestScore := 0
	for taskType, keywords := range taskTypeKeywords {
		score := 0
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && taskType < bestType) {
			bestType = taskType
			bestScore = score
		}
	}
	return bestType
}

func inferComplexity(text string, task *domain.Task, now time.Time) domain.Complexity {
	votes := map[domain.Complexity]int{}
	for complexity, keywords := range complexityKeywords {
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				votes[complexity]++
			}
		}
	}

	// Imminent deadlines escalate independently of vocabulary.
	if task.Deadline != nil {
		hoursLeft := task.Deadline.Sub(now).Hours()
		if hoursLeft < 2 {
			votes[domain.ComplexityCritical] += 2
		} else if hoursLeft < 24 {
			votes[domain.ComplexityHigh]++
		}
	}

	best := domain.ComplexityMedium
	bestVotes := 0
	// Fixed order so equal votes resolve deterministically, highest first.
	for _, complexity := range []domain.Complexity{
		domain.ComplexityCritical, domain.ComplexityHigh,
		domain.ComplexityMedium, domain.ComplexityLow,
	} {
		if votes[complexity] > bestVotes {
			best = complexity
			bestVotes = votes[complexity]
		}
	}
	return best
}
