package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkoutsos/agency/internal/domain"
)

func TestAnalyzeTask(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	t.Run("infers type and capabilities from vocabulary", func(t *testing.T) {
		task := &domain.Task{Title: "New feature", Description: "Implement the export api and fix the pagination bug"}
		analyzeTask(task, now)

		assert.Equal(t, "software_development", task.Type)
		assert.ElementsMatch(t, []string{"programming", "system_design", "testing"}, task.Requirements.RequiredCapabilities)
	})

	t.Run("declared fields are never overwritten", func(t *testing.T) {
		task := &domain.Task{
			Description:    "analyze the data",
			Type:           "market_research",
			Complexity:     domain.ComplexityHigh,
			EstimatedHours: 3,
			Requirements:   domain.Requirements{RequiredCapabilities: []string{"research"}},
		}
		analyzeTask(task, now)

		assert.Equal(t, "market_research", task.Type)
		assert.Equal(t, domain.ComplexityHigh, task.Complexity)
		assert.Equal(t, 3.0, task.EstimatedHours)
		assert.Equal(t, []string{"research"}, task.Requirements.RequiredCapabilities)
	})

	t.Run("no keyword match falls back to general", func(t *testing.T) {
		task := &domain.Task{Description: "miscellaneous housekeeping"}
		analyzeTask(task, now)

		assert.Equal(t, "general", task.Type)
		assert.Empty(t, task.Requirements.RequiredCapabilities)
		assert.Equal(t, domain.ComplexityMedium, task.Complexity)
		assert.Equal(t, 6.0, task.EstimatedHours)
	})

	t.Run("complexity vocabulary votes", func(t *testing.T) {
		task := &domain.Task{Description: "a comprehensive and detailed competitor analysis"}
		analyzeTask(task, now)

		assert.Equal(t, domain.ComplexityHigh, task.Complexity)
		assert.Equal(t, 16.0, task.EstimatedHours)
	})

	t.Run("imminent deadline escalates to critical", func(t *testing.T) {
		deadline := now.Add(time.Hour)
		task := &domain.Task{Description: "write a short note", Deadline: &deadline}
		analyzeTask(task, now)

		assert.Equal(t, domain.ComplexityCritical, task.Complexity)
		assert.Equal(t, 24.0, task.EstimatedHours)
	})

	t.Run("same-day deadline leans high", func(t *testing.T) {
		deadline := now.Add(10 * time.Hour)
		task := &domain.Task{Description: "write a short note", Deadline: &deadline}
		analyzeTask(task, now)

		assert.Equal(t, domain.ComplexityHigh, task.Complexity)
	})
}

func TestInferTaskType_DeterministicTieBreak(t *testing.T) {
	// "campaign" and "research" each score one keyword; the smaller name wins.
	assert.Equal(t, "market_research", inferTaskType("research the campaign"))
	assert.Equal(t, "market_research", inferTaskType("campaign research"))
}
