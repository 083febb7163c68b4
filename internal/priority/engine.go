// Package priority computes composite priority scores for tasks from five
// weighted sub-scores: urgency, business impact, resource efficiency,
// revenue impact and dependency criticality.
package priority

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoutsos/agency/internal/domain"
)

// Composite weights. They must sum to 1.
const (
	weightUrgency    = 0.25
	weightBusiness   = 0.30
	weightEfficiency = 0.20
	weightRevenue    = 0.15
	weightDependency = 0.10
)

// Load thresholds for the resource-efficiency factor.
const (
	lowLoadThreshold  = 0.3
	highLoadThreshold = 0.8
)

// Task types that carry direct business impact.
var highImpactTaskTypes = map[string]bool{
	"client_deliverable":     true,
	"revenue_generation":     true,
	"compliance_requirement": true,
}

var clientTierMultipliers = map[string]float64{
	"enterprise": 1.5,
	"premium":    1.2,
	"standard":   1.0,
	"basic":      0.8,
}

var strategicMultipliers = map[string]float64{
	"critical": 2.0,
	"high":     1.5,
	"medium":   1.0,
	"low":      0.5,
}

var stakeholderMultipliers = map[string]float64{
	"ceo":       2.0,
	"executive": 1.5,
	"manager":   1.0,
	"team":      0.8,
}

var revenueTypeMultipliers = map[string]float64{
	"direct_revenue":   2.0,
	"pipeline_impact":  1.5,
	"retention_impact": 1.3,
	"cost_savings":     1.0,
}

// Engine scores tasks. It is stateless; the caller supplies the clock so
// rescoring is deterministic and testable.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a new priority engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "priority").Logger()}
}

// Score computes the composite priority of a task in the given system
// context at the given instant.
func (e *Engine) Score(task *domain.Task, ctx *domain.SystemContext, now time.Time) domain.PriorityScore {
	score := domain.PriorityScore{
		Urgency:            e.urgency(task, now),
		BusinessImpact:     e.businessImpact(task),
		ResourceEfficiency: e.resourceEfficiency(task, ctx),
		RevenueImpact:      e.revenueImpact(task),
		Dependency:         e.dependency(task, ctx),
		ComputedAt:         now,
		Triggers:           e.triggers(task, now),
	}

	score.Composite = clamp(
		weightUrgency*score.Urgency+
			weightBusiness*score.BusinessImpact+
			weightEfficiency*score.ResourceEfficiency+
			weightRevenue*score.RevenueImpact+
			weightDependency*score.Dependency,
		0, 100)

	return score
}

// ScoreBoosted scores a task with the full aging factor applied up front.
// Used when a task is reclaimed from an unavailable worker so it does not
// start over at the back of its priority band.
func (e *Engine) ScoreBoosted(task *domain.Task, ctx *domain.SystemContext, now time.Time) domain.PriorityScore {
	score := e.Score(task, ctx, now)
	score.Urgency = clamp(score.Urgency*1.5, 0, 100)
	score.Composite = clamp(
		weightUrgency*score.Urgency+
			weightBusiness*score.BusinessImpact+
			weightEfficiency*score.ResourceEfficiency+
			weightRevenue*score.RevenueImpact+
			weightDependency*score.Dependency,
		0, 100)
	return score
}

// urgency is piecewise on hours to deadline, boosted by queue aging and by
// an effort crunch when the remaining window is tight for the estimate.
func (e *Engine) urgency(task *domain.Task, now time.Time) float64 {
	base := 30.0
	crunch := false
	if task.Deadline != nil {
		hoursLeft := task.Deadline.Sub(now).Hours()
		switch {
		case hoursLeft <= 2:
			base = 95
		case hoursLeft <= 24:
			base = 80
		case hoursLeft <= 168:
			base = 50
		default:
			base = 20
		}
		crunch = hoursLeft < 1.5*task.EstimatedHours
	}

	daysWaiting := now.Sub(task.CreatedAt).Hours() / 24
	if daysWaiting < 0 {
		daysWaiting = 0
	}
	aging := math.Min(1.5, 1+daysWaiting*0.1)

	urgency := base * aging
	if crunch {
		urgency *= 1.3
	}
	return clamp(urgency, 0, 100)
}

func (e *Engine) businessImpact(task *domain.Task) float64 {
	impact := 50.0 *
		multiplier(clientTierMultipliers, task.Requirements.ClientTier) *
		multiplier(strategicMultipliers, task.Requirements.StrategicImportance) *
		multiplier(stakeholderMultipliers, task.Requirements.StakeholderLevel)

	if highImpactTaskTypes[task.Type] {
		impact *= 1.3
	}
	return clamp(impact, 0, 100)
}

func (e *Engine) resourceEfficiency(task *domain.Task, ctx *domain.SystemContext) float64 {
	loadFactor := 1.0
	switch {
	case ctx.SystemLoad < lowLoadThreshold:
		loadFactor = 1.2
	case ctx.SystemLoad > highLoadThreshold:
		if task.EstimatedHours < 1 {
			loadFactor = 1.5
		} else {
			loadFactor = 0.8
		}
	}

	coverage := skillCoverage(task.Requirements.RequiredCapabilities, ctx.AvailableExpertise)
	return clamp(50.0*loadFactor*(1+0.3*coverage), 0, 100)
}

func (e *Engine) revenueImpact(task *domain.Task) float64 {
	if task.RevenuePotential <= 0 {
		return 20
	}
	base := 30 + 20*math.Log10(math.Max(1, task.RevenuePotential/100))
	base = clamp(base, 30, 90)
	return clamp(base*multiplier(revenueTypeMultipliers, task.Requirements.RevenueType), 0, 100)
}

func (e *Engine) dependency(task *domain.Task, ctx *domain.SystemContext) float64 {
	blockingBoost := 1 + 0.2*float64(len(task.Requirements.Blocks))
	dependencyDrag := 1 - 0.1*float64(len(task.Requirements.DependsOn))
	if dependencyDrag < 0 {
		dependencyDrag = 0
	}

	readiness := 1.0
	if deps := task.Requirements.DependsOn; len(deps) > 0 {
		completed := 0
		for _, dep := range deps {
			if ctx.DependencyStates[dep] == domain.TaskCompleted {
				completed++
			}
		}
		readiness = float64(completed) / float64(len(deps))
	}

	return clamp(50.0*blockingBoost*dependencyDrag*readiness, 0, 100)
}

// triggers attaches the recompute conditions for this scoring.
func (e *Engine) triggers(task *domain.Task, now time.Time) []domain.RecomputeTrigger {
	triggers := []domain.RecomputeTrigger{
		domain.TriggerSystemLoadChange,
		domain.TriggerWorkerAvailabilityChange,
	}

	if task.Deadline != nil && task.Deadline.Sub(now) < 48*time.Hour {
		triggers = append(triggers, domain.TriggerHourlyDeadlineCheck)
	} else {
		triggers = append(triggers, domain.TriggerDailyDeadlineCheck)
	}

	if len(task.Requirements.DependsOn) > 0 {
		triggers = append(triggers, domain.TriggerDependencyStateChange)
	}
	if task.RevenuePotential > 1000 {
		triggers = append(triggers, domain.TriggerHighValueMonitoring)
	}
	return triggers
}

// skillCoverage is the fraction of required capabilities with at least one
// available worker offering them.
func skillCoverage(required []string, expertise map[string]int) float64 {
	if len(required) == 0 {
		return 1.0
	}
	covered := 0
	for _, tag := range required {
		if expertise[tag] > 0 {
			covered++
		}
	}
	return float64(covered) / float64(len(required))
}

func multiplier(table map[string]float64, key string) float64 {
	if m, ok := table[key]; ok {
		return m
	}
	return 1.0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
