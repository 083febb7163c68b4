package priority

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoutsos/agency/internal/domain"
)

var scoreTime = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

func quietContext() *domain.SystemContext {
	return &domain.SystemContext{
		SystemLoad:         0.5,
		AvailableExpertise: map[string]int{},
		DependencyStates:   map[string]domain.TaskStatus{},
	}
}

func taskWithDeadline(hours float64) *domain.Task {
	deadline := scoreTime.Add(time.Duration(hours * float64(time.Hour)))
	return &domain.Task{
		ID:        "task-1",
		Title:     "test task",
		CreatedAt: scoreTime,
		Deadline:  &deadline,
	}
}

func TestEngine_UrgencyPiecewise(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	cases := []struct {
		name     string
		task     *domain.Task
		expected float64
	}{
		{"imminent deadline", taskWithDeadline(1), 95},
		{"same day", taskWithDeadline(12), 80},
		{"this week", taskWithDeadline(100), 50},
		{"distant", taskWithDeadline(500), 20},
		{"no deadline", &domain.Task{CreatedAt: scoreTime}, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := engine.Score(tc.task, ctx, scoreTime)
			assert.InDelta(t, tc.expected, score.Urgency, 0.001)
		})
	}
}

func TestEngine_UrgencyMonotonicity(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	// Holding everything else fixed, a nearer deadline never lowers urgency.
	horizons := []float64{1, 12, 100, 500}
	var prev float64 = 101
	for _, h := range horizons {
		score := engine.Score(taskWithDeadline(h), ctx, scoreTime)
		assert.LessOrEqual(t, score.Urgency, prev,
			"urgency must not increase as the deadline recedes (%.0fh)", h)
		prev = score.Urgency
	}
}

func TestEngine_UrgencyAging(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	task := taskWithDeadline(100)
	task.CreatedAt = scoreTime.Add(-48 * time.Hour) // two days waiting

	score := engine.Score(task, ctx, scoreTime)
	// 50 * (1 + 2*0.1) = 60
	assert.InDelta(t, 60, score.Urgency, 0.001)

	t.Run("aging caps at 1.5", func(t *testing.T) {
		task := taskWithDeadline(100)
		task.CreatedAt = scoreTime.Add(-30 * 24 * time.Hour)
		score := engine.Score(task, ctx, scoreTime)
		assert.InDelta(t, 75, score.Urgency, 0.001)
	})
}

func TestEngine_UrgencyEffortCrunch(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	// 100 hours left for an 80-hour estimate: 100 < 120, crunch applies.
	task := taskWithDeadline(100)
	task.EstimatedHours = 80

	score := engine.Score(task, ctx, scoreTime)
	assert.InDelta(t, 50*1.3, score.Urgency, 0.001)
}

func TestEngine_BusinessImpact(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	task := &domain.Task{
		CreatedAt: scoreTime,
		Type:      "client_deliverable",
		Requirements: domain.Requirements{
			ClientTier:          "enterprise",
			StrategicImportance: "high",
			StakeholderLevel:    "executive",
		},
	}

	score := engine.Score(task, ctx, scoreTime)
	// 50 * 1.5 * 1.5 * 1.5 * 1.3 = 219.375, clamped to 100
	assert.InDelta(t, 100, score.BusinessImpact, 0.001)

	t.Run("unknown labels default to neutral", func(t *testing.T) {
		task := &domain.Task{CreatedAt: scoreTime}
		score := engine.Score(task, ctx, scoreTime)
		assert.InDelta(t, 50, score.BusinessImpact, 0.001)
	})

	t.Run("basic tier low importance", func(t *testing.T) {
		task := &domain.Task{
			CreatedAt: scoreTime,
			Requirements: domain.Requirements{
				ClientTier:          "basic",
				StrategicImportance: "low",
				StakeholderLevel:    "team",
			},
		}
		score := engine.Score(task, ctx, scoreTime)
		// 50 * 0.8 * 0.5 * 0.8 = 16
		assert.InDelta(t, 16, score.BusinessImpact, 0.001)
	})
}

func TestEngine_ResourceEfficiency(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	task := &domain.Task{
		CreatedAt: scoreTime,
		Requirements: domain.Requirements{
			RequiredCapabilities: []string{"writing", "seo"},
		},
	}

	t.Run("low load boost with full coverage", func(t *testing.T) {
		ctx := &domain.SystemContext{
			SystemLoad:         0.1,
			AvailableExpertise: map[string]int{"writing": 2, "seo": 1},
		}
		score := engine.Score(task, ctx, scoreTime)
		// 50 * 1.2 * (1 + 0.3*1.0) = 78
		assert.InDelta(t, 78, score.ResourceEfficiency, 0.001)
	})

	t.Run("high load penalizes long tasks", func(t *testing.T) {
		long := &domain.Task{CreatedAt: scoreTime, EstimatedHours: 8}
		ctx := &domain.SystemContext{SystemLoad: 0.9, AvailableExpertise: map[string]int{}}
		score := engine.Score(long, ctx, scoreTime)
		// 50 * 0.8 * (1 + 0.3) = 52; no required capabilities => full coverage
		assert.InDelta(t, 52, score.ResourceEfficiency, 0.001)
	})

	t.Run("high load favors sub-hour tasks", func(t *testing.T) {
		quick := &domain.Task{CreatedAt: scoreTime, EstimatedHours: 0.5}
		ctx := &domain.SystemContext{SystemLoad: 0.9, AvailableExpertise: map[string]int{}}
		score := engine.Score(quick, ctx, scoreTime)
		// 50 * 1.5 * 1.3 = 97.5
		assert.InDelta(t, 97.5, score.ResourceEfficiency, 0.001)
	})

	t.Run("partial coverage", func(t *testing.T) {
		ctx := &domain.SystemContext{
			SystemLoad:         0.5,
			AvailableExpertise: map[string]int{"writing": 1},
		}
		score := engine.Score(task, ctx, scoreTime)
		// 50 * 1.0 * (1 + 0.3*0.5) = 57.5
		assert.InDelta(t, 57.5, score.ResourceEfficiency, 0.001)
	})
}

func TestEngine_RevenueImpact(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	t.Run("no revenue potential", func(t *testing.T) {
		task := &domain.Task{CreatedAt: scoreTime}
		score := engine.Score(task, ctx, scoreTime)
		assert.InDelta(t, 20, score.RevenueImpact, 0.001)
	})

	t.Run("log scale", func(t *testing.T) {
		task := &domain.Task{CreatedAt: scoreTime, RevenuePotential: 10000}
		score := engine.Score(task, ctx, scoreTime)
		// 30 + 20*log10(100) = 70
		assert.InDelta(t, 70, score.RevenueImpact, 0.001)
	})

	t.Run("direct revenue multiplier clamps at 100", func(t *testing.T) {
		task := &domain.Task{
			CreatedAt:        scoreTime,
			RevenuePotential: 10000,
			Requirements:     domain.Requirements{RevenueType: "direct_revenue"},
		}
		score := engine.Score(task, ctx, scoreTime)
		// 70 * 2.0 = 140, clamped
		assert.InDelta(t, 100, score.RevenueImpact, 0.001)
	})

	t.Run("small revenue floors at 30", func(t *testing.T) {
		task := &domain.Task{CreatedAt: scoreTime, RevenuePotential: 50}
		score := engine.Score(task, ctx, scoreTime)
		assert.InDelta(t, 30, score.RevenueImpact, 0.001)
	})
}

func TestEngine_Dependency(t *testing.T) {
	engine := NewEngine(zerolog.Nop())

	t.Run("independent task", func(t *testing.T) {
		task := &domain.Task{CreatedAt: scoreTime}
		score := engine.Score(task, quietContext(), scoreTime)
		assert.InDelta(t, 50, score.Dependency, 0.001)
	})

	t.Run("blocking tasks raise the score", func(t *testing.T) {
		task := &domain.Task{
			CreatedAt:    scoreTime,
			Requirements: domain.Requirements{Blocks: []string{"a", "b", "c"}},
		}
		score := engine.Score(task, quietContext(), scoreTime)
		// 50 * 1.6 = 80
		assert.InDelta(t, 80, score.Dependency, 0.001)
	})

	t.Run("unmet dependencies zero the score", func(t *testing.T) {
		task := &domain.Task{
			CreatedAt:    scoreTime,
			Requirements: domain.Requirements{DependsOn: []string{"x", "y"}},
		}
		ctx := quietContext()
		ctx.DependencyStates["x"] = domain.TaskPending
		ctx.DependencyStates["y"] = domain.TaskInProgress
		score := engine.Score(task, ctx, scoreTime)
		assert.InDelta(t, 0, score.Dependency, 0.001)
	})

	t.Run("half-met dependencies", func(t *testing.T) {
		task := &domain.Task{
			CreatedAt:    scoreTime,
			Requirements: domain.Requirements{DependsOn: []string{"x", "y"}},
		}
		ctx := quietContext()
		ctx.DependencyStates["x"] = domain.TaskCompleted
		ctx.DependencyStates["y"] = domain.TaskPending
		score := engine.Score(task, ctx, scoreTime)
		// 50 * 1.0 * 0.8 * 0.5 = 20
		assert.InDelta(t, 20, score.Dependency, 0.001)
	})
}

func TestEngine_CompositeWeightsAndClamp(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	task := taskWithDeadline(100)
	score := engine.Score(task, ctx, scoreTime)

	expected := 0.25*score.Urgency +
		0.30*score.BusinessImpact +
		0.20*score.ResourceEfficiency +
		0.15*score.RevenueImpact +
		0.10*score.Dependency
	assert.InDelta(t, expected, score.Composite, 0.001)
	assert.GreaterOrEqual(t, score.Composite, 0.0)
	assert.LessOrEqual(t, score.Composite, 100.0)
}

func TestEngine_RecomputeTriggers(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()

	t.Run("always includes load and availability", func(t *testing.T) {
		score := engine.Score(&domain.Task{CreatedAt: scoreTime}, ctx, scoreTime)
		assert.Contains(t, score.Triggers, domain.TriggerSystemLoadChange)
		assert.Contains(t, score.Triggers, domain.TriggerWorkerAvailabilityChange)
		assert.Contains(t, score.Triggers, domain.TriggerDailyDeadlineCheck)
	})

	t.Run("near deadline gets hourly checks", func(t *testing.T) {
		score := engine.Score(taskWithDeadline(24), ctx, scoreTime)
		assert.Contains(t, score.Triggers, domain.TriggerHourlyDeadlineCheck)
		assert.NotContains(t, score.Triggers, domain.TriggerDailyDeadlineCheck)
	})

	t.Run("dependencies and high value", func(t *testing.T) {
		task := &domain.Task{
			CreatedAt:        scoreTime,
			RevenuePotential: 5000,
			Requirements:     domain.Requirements{DependsOn: []string{"x"}},
		}
		score := engine.Score(task, ctx, scoreTime)
		assert.Contains(t, score.Triggers, domain.TriggerDependencyStateChange)
		assert.Contains(t, score.Triggers, domain.TriggerHighValueMonitoring)
	})
}

func TestEngine_ScoreDeterminism(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	ctx := quietContext()
	task := taskWithDeadline(50)

	first := engine.Score(task, ctx, scoreTime)
	second := engine.Score(task, ctx, scoreTime)
	require.Equal(t, first.Composite, second.Composite)
	require.Equal(t, first.Triggers, second.Triggers)
}
