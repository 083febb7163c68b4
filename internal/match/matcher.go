// Package match evaluates worker-task compatibility: skill alignment,
// experience relevance, performance prediction and availability, folded into
// one composite with a confidence level and human-readable reasoning.
package match

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoutsos/agency/internal/domain"
)

// Sub-score weights for the compatibility composite.
const (
	weightSkill        = 0.40
	weightExperience   = 0.25
	weightPerformance  = 0.20
	weightAvailability = 0.15
)

// Skill-alignment weights: exact tag match, related tag, and the
// transferable credit applied to the non-gap fraction.
const (
	exactMatchWeight   = 1.0
	relatedSkillWeight = 0.7
	transferableWeight = 0.4
)

// Experience relevance component weights.
const (
	domainExperienceWeight     = 0.4
	taskTypeExperienceWeight   = 0.3
	complexityExperienceWeight = 0.2
	recentPerformanceWeight    = 0.1
)

const recentExperienceWindow = 30 * 24 * time.Hour

// tagAffinityClusters defines the symmetric tag relation: two tags are
// related when they co-appear in any cluster.
var tagAffinityClusters = [][]string{
	{"content_creation", "writing", "creativity", "marketing"},
	{"data_analysis", "statistics", "research", "visualization"},
	{"programming", "system_design", "debugging", "technical_writing"},
	{"marketing", "content_creation", "analytics", "communication"},
	{"sales", "communication", "persuasion", "relationship_management"},
}

type skillAlignment struct {
	score          float64
	exactMatches   []string
	relatedMatches []string
	gaps           []string
}

// Matcher is stateless; all inputs arrive as snapshots.
type Matcher struct {
	log zerolog.Logger
}

// NewMatcher creates a new capability matcher.
func NewMatcher(log zerolog.Logger) *Matcher {
	return &Matcher{log: log.With().Str("component", "match").Logger()}
}

// Evaluate produces the full compatibility verdict for one worker against
// one task at the given instant.
func (m *Matcher) Evaluate(worker *domain.WorkerProfile, task *domain.Task, now time.Time) domain.Compatibility {
	skills := m.alignSkills(worker, task)
	experience, relevantCount := m.experienceRelevance(worker, task, now)
	performance := m.predictPerformance(worker, task)
	availability := m.availability(worker, task, now)

	composite := clamp01(weightSkill*skills.score +
		weightExperience*experience +
		weightPerformance*performance +
		weightAvailability*availability)

	confidence := composite +
		0.10*float64(len(skills.exactMatches)) +
		minFloat(0.20, 0.05*float64(relevantCount)) -
		0.15*float64(len(skills.gaps))
	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.2 {
		confidence = 0.2
	}

	return domain.Compatibility{
		WorkerID:        worker.ID,
		TaskID:          task.ID,
		Composite:       composite,
		SkillMatch:      skills.score,
		Experience:      experience,
		Performance:     performance,
		Availability:    availability,
		Confidence:      confidence,
		Reasoning:       m.reasoning(skills, experience, performance, availability),
		Recommendations: m.recommendations(worker, task, skills),
		ExactMatches:    skills.exactMatches,
		RelatedMatches:  skills.relatedMatches,
		Gaps:            skills.gaps,
	}
}

// alignSkills partitions the required tags into exact matches, related
// matches and gaps, and folds the coverages into one skill score.
func (m *Matcher) alignSkills(worker *domain.WorkerProfile, task *domain.Task) skillAlignment {
	required := task.Requirements.RequiredCapabilities
	if len(required) == 0 {
		return skillAlignment{score: 0.7}
	}

	alignment := skillAlignment{}
	for _, tag := range required {
		if worker.HasCapability(tag) {
			alignment.exactMatches = append(alignment.exactMatches, tag)
			continue
		}
		related := false
		for _, workerTag := range worker.Capabilities {
			if tagsRelated(tag, workerTag) {
				related = true
				break
			}
		}
		if related {
			alignment.relatedMatches = append(alignment.relatedMatches, tag)
		} else {
			alignment.gaps = append(alignment.gaps, tag)
		}
	}

	total := float64(len(required))
	exactCoverage := float64(len(alignment.exactMatches)) / total
	relatedCoverage := float64(len(alignment.relatedMatches)) / total
	gapRatio := float64(len(alignment.gaps)) / total

	alignment.score = clamp01(exactCoverage*exactMatchWeight +
		relatedCoverage*relatedSkillWeight +
		(1-gapRatio)*transferableWeight)
	return alignment
}

// experienceRelevance scores the worker's rolling history against the task's
// domain, type, complexity and recency. Components with no matching entries
// default to a neutral 0.5. The second return is the count of same-type
// entries feeding the confidence bonus.
func (m *Matcher) experienceRelevance(worker *domain.WorkerProfile, task *domain.Task, now time.Time) (float64, int) {
	domainScore, typeScore, complexityScore, recentScore := 0.5, 0.5, 0.5, 0.5
	relevantCount := 0

	if len(worker.Experience) > 0 {
		var domainEntries, typeEntries, complexityEntries, recentEntries []float64
		cutoff := now.Add(-recentExperienceWindow)

		for _, entry := range worker.Experience {
			if task.Requirements.Domain != "" && entry.Domain == task.Requirements.Domain {
				domainEntries = append(domainEntries, entry.SuccessScore)
			}
			if entry.TaskType == task.Type {
				typeEntries = append(typeEntries, entry.SuccessScore)
				relevantCount++
			}
			if entry.Complexity == task.Complexity {
				complexityEntries = append(complexityEntries, entry.SuccessScore)
			}
			if entry.CompletedAt.After(cutoff) {
				recentEntries = append(recentEntries, entry.SuccessScore)
			}
		}

		if len(domainEntries) > 0 {
			domainScore = mean(domainEntries)
		}
		if len(typeEntries) > 0 {
			typeScore = mean(typeEntries)
		}
		if len(complexityEntries) > 0 {
			complexityScore = mean(complexityEntries)
		}
		if len(recentEntries) > 0 {
			recentScore = mean(recentEntries)
		}
	}

	score := domainScore*domainExperienceWeight +
		typeScore*taskTypeExperienceWeight +
		complexityScore*complexityExperienceWeight +
		recentScore*recentPerformanceWeight
	return score, relevantCount
}

// predictPerformance estimates the success likelihood from the baseline
// success rate, proficiency over the required tags, current workload and
// learning efficiency for unfamiliar work.
func (m *Matcher) predictPerformance(worker *domain.WorkerProfile, task *domain.Task) float64 {
	base := worker.Metrics.SuccessRate
	if base == 0 {
		base = 0.7
	}

	required := task.Requirements.RequiredCapabilities
	proficiencyFactor := 1.0
	learningFactor := 1.0
	if len(required) > 0 {
		sum := 0.0
		familiar := 0
		for _, tag := range required {
			if p, ok := worker.Proficiency[tag]; ok {
				sum += p
			} else {
				sum += 0.3
			}
			if worker.HasCapability(tag) {
				familiar++
			}
		}
		proficiencyFactor = 0.5 + 0.5*(sum/float64(len(required)))

		familiarity := float64(familiar) / float64(len(required))
		learningFactor = familiarity + (1-familiarity)*worker.LearningEfficiency
	}

	workloadFactor := 1.0 - 0.3*worker.Utilization()

	predicted := base * proficiencyFactor * workloadFactor * learningFactor
	if predicted > 1.0 {
		return 1.0
	}
	if predicted < 0.1 {
		return 0.1
	}
	return predicted
}

// availability scores remaining capacity, discounted for imminent deadlines
// when the worker is already nearly full.
func (m *Matcher) availability(worker *domain.WorkerProfile, task *domain.Task, now time.Time) float64 {
	if worker.MaxCapacity <= 0 {
		return 0
	}
	capacityAvailable := float64(worker.CapacityRemaining()) / float64(worker.MaxCapacity)

	urgencyFactor := 1.0
	if task.Deadline != nil && task.Deadline.Sub(now) < 4*time.Hour && capacityAvailable < 0.3 {
		urgencyFactor = 0.8
	}

	return clamp01(capacityAvailable * urgencyFactor)
}

func (m *Matcher) reasoning(skills skillAlignment, experience, performance, availability float64) string {
	var reasons []string

	if len(skills.exactMatches) > 0 {
		reasons = append(reasons, fmt.Sprintf("Strong skill match with %d exact capability matches", len(skills.exactMatches)))
	}
	if len(skills.gaps) > 0 {
		reasons = append(reasons, fmt.Sprintf("Missing %d required capabilities: %s",
			len(skills.gaps), strings.Join(firstN(skills.gaps, 3), ", ")))
	}

	if experience > 0.8 {
		reasons = append(reasons, "Excellent relevant experience")
	} else if experience < 0.4 {
		reasons = append(reasons, "Limited relevant experience")
	}

	if performance > 0.8 {
		reasons = append(reasons, "High performance prediction")
	} else if performance < 0.5 {
		reasons = append(reasons, "Lower performance prediction due to workload or unfamiliarity")
	}

	if availability < 0.3 {
		reasons = append(reasons, "Limited availability due to current workload")
	} else if availability > 0.8 {
		reasons = append(reasons, "Good availability for immediate assignment")
	}

	if len(reasons) == 0 {
		return "Standard assignment based on general capabilities"
	}
	return strings.Join(reasons, "; ")
}

func (m *Matcher) recommendations(worker *domain.WorkerProfile, task *domain.Task, skills skillAlignment) []string {
	var recommendations []string

	if len(skills.gaps) > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("Consider training in: %s", strings.Join(firstN(skills.gaps, 3), ", ")))
	}

	required := make(map[string]bool, len(task.Requirements.RequiredCapabilities))
	for _, tag := range task.Requirements.RequiredCapabilities {
		required[tag] = true
	}
	unused := 0
	for _, tag := range worker.Capabilities {
		if !required[tag] {
			unused++
		}
	}
	if unused > 3 {
		recommendations = append(recommendations, "Worker has additional capabilities that could be leveraged")
	}

	if worker.Metrics.SuccessRate > 0 && worker.Metrics.SuccessRate < 0.6 {
		recommendations = append(recommendations, "Consider additional training to improve success rate")
	}

	return recommendations
}

// tagsRelated reports whether two tags co-appear in any affinity cluster.
func tagsRelated(a, b string) bool {
	if a == b {
		return true
	}
	for _, cluster := range tagAffinityClusters {
		foundA, foundB := false, false
		for _, tag := range cluster {
			if tag == a {
				foundA = true
			}
			if tag == b {
				foundB = true
			}
		}
		if foundA && foundB {
			return true
		}
	}
	return false
}

// RelatedTags returns the tags related to the given one, sorted. Used by
// the registry's expertise reporting.
func RelatedTags(tag string) []string {
	set := make(map[string]bool)
	for _, cluster := range tagAffinityClusters {
		in := false
		for _, t := range cluster {
			if t == tag {
				in = true
				break
			}
		}
		if in {
			for _, t := range cluster {
				if t != tag {
					set[t] = true
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func firstN(values []string, n int) []string {
	if len(values) <= n {
		return values
	}
	return values[:n]
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
