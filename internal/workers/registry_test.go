package workers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/domain"
)

type fakeWorker struct {
	id   string
	tags []string
}

func (w *fakeWorker) ID() string   { return w.id }
func (w *fakeWorker) Type() string { return "fake" }
func (w *fakeWorker) Capabilities() domain.CapabilitySet {
	profs := make(map[string]float64, len(w.tags))
	for _, tag := range w.tags {
		profs[tag] = 0.8
	}
	return domain.CapabilitySet{Tags: w.tags, Proficiencies: profs}
}
func (w *fakeWorker) Validate(*domain.Task) domain.ValidationResult {
	return domain.ValidationResult{Accept: true}
}
func (w *fakeWorker) Process(context.Context, *domain.Task) domain.TaskResult {
	return domain.TaskResult{WorkerID: w.id, Status: domain.ResultCompleted}
}

func newTestRegistry() *Registry {
	return NewRegistry(config.Default(), zerolog.Nop())
}

func resultFor(workerID, taskID string, status domain.ResultStatus, quality float64) *domain.TaskResult {
	started := time.Now().UTC().Add(-2 * time.Hour)
	result := &domain.TaskResult{
		TaskID:     taskID,
		WorkerID:   workerID,
		Status:     status,
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Hour),
	}
	if quality > 0 {
		result.QualityMetrics = map[string]float64{"overall": quality}
	}
	return result
}

func TestRegistry_Register(t *testing.T) {
	r := newTestRegistry()

	profile := r.Register(&fakeWorker{id: "w1", tags: []string{"writing", "seo"}})

	assert.Equal(t, "w1", profile.ID)
	assert.Equal(t, 3, profile.MaxCapacity)
	assert.ElementsMatch(t, []string{"writing", "seo"}, profile.Capabilities)
	assert.InDelta(t, 0.8, profile.Proficiency["writing"], 0.001)

	t.Run("re-register keeps accumulated profile", func(t *testing.T) {
		r.RecordResult(resultFor("w1", "t1", domain.ResultCompleted, 0.9), &domain.Task{ID: "t1", Type: "content"})
		profile = r.Register(&fakeWorker{id: "w1", tags: []string{"writing"}})
		assert.Equal(t, 1, profile.Metrics.TasksCompleted)
		assert.ElementsMatch(t, []string{"writing"}, profile.Capabilities)
	})
}

func TestRegistry_Unregister(t *testing.T) {
	r := newTestRegistry()
	r.Register(&fakeWorker{id: "w1"})
	require.NoError(t, r.AssignTask("w1", "t1"))

	orphaned := r.Unregister("w1")
	assert.Equal(t, []string{"t1"}, orphaned)
	_, ok := r.Snapshot("w1")
	assert.False(t, ok)

	assert.Nil(t, r.Unregister("w1"))
}

func TestRegistry_AssignAndCapacity(t *testing.T) {
	r := newTestRegistry()
	r.Register(&fakeWorker{id: "w1"})

	for i := 0; i < 3; i++ {
		require.NoError(t, r.AssignTask("w1", fmt.Sprintf("t%d", i)))
	}
	err := r.AssignTask("w1", "t4")
	assert.True(t, domain.IsKind(err, domain.KindNoCompatibleWorker))

	snapshot, _ := r.Snapshot("w1")
	assert.Equal(t, 3, snapshot.Workload)
	assert.Equal(t, 0, snapshot.CapacityRemaining())

	t.Run("release frees capacity", func(t *testing.T) {
		r.ReleaseTask("w1", "t0")
		snapshot, _ := r.Snapshot("w1")
		assert.Equal(t, 2, snapshot.Workload)
		assert.NotContains(t, snapshot.CurrentTasks, "t0")
	})
}

func TestRegistry_Available(t *testing.T) {
	r := newTestRegistry()
	now := time.Now().UTC()

	r.Register(&fakeWorker{id: "busy"})
	r.Register(&fakeWorker{id: "free"})
	r.Register(&fakeWorker{id: "half"})

	require.NoError(t, r.AssignTask("busy", "t1"))
	require.NoError(t, r.AssignTask("busy", "t2"))
	require.NoError(t, r.AssignTask("busy", "t3"))
	require.NoError(t, r.AssignTask("half", "t4"))

	available := r.Available(now)
	require.Len(t, available, 2)
	// Ordered by remaining capacity, descending.
	assert.Equal(t, "free", available[0].ID)
	assert.Equal(t, "half", available[1].ID)

	t.Run("stale heartbeat excludes", func(t *testing.T) {
		r.Heartbeat("free", now.Add(-time.Hour))
		available := r.Available(now)
		require.Len(t, available, 1)
		assert.Equal(t, "half", available[0].ID)
	})

	t.Run("heartbeat restores eligibility", func(t *testing.T) {
		r.Heartbeat("free", now)
		assert.Len(t, r.Available(now), 2)
	})
}

func TestRegistry_SweepStale(t *testing.T) {
	r := newTestRegistry()
	now := time.Now().UTC()

	r.Register(&fakeWorker{id: "gone"})
	r.Register(&fakeWorker{id: "alive"})
	require.NoError(t, r.AssignTask("gone", "t1"))
	require.NoError(t, r.AssignTask("gone", "t2"))

	r.Heartbeat("gone", now.Add(-time.Hour))
	r.Heartbeat("alive", now)

	orphaned := r.SweepStale(now)
	require.Contains(t, orphaned, "gone")
	assert.ElementsMatch(t, []string{"t1", "t2"}, orphaned["gone"])
	assert.NotContains(t, orphaned, "alive")

	snapshot, _ := r.Snapshot("gone")
	assert.True(t, snapshot.Suspect)
	assert.Zero(t, snapshot.Workload)
	assert.Empty(t, snapshot.CurrentTasks)

	t.Run("second sweep is a no-op", func(t *testing.T) {
		assert.Empty(t, r.SweepStale(now))
	})
}

func TestRegistry_RecordResult_Metrics(t *testing.T) {
	r := newTestRegistry()
	r.Register(&fakeWorker{id: "w1"})
	task := &domain.Task{ID: "t1", Type: "content", Complexity: domain.ComplexityMedium, EstimatedHours: 2}

	require.NoError(t, r.AssignTask("w1", "t1"))
	r.RecordResult(resultFor("w1", "t1", domain.ResultCompleted, 0.9), task)

	snapshot, _ := r.Snapshot("w1")
	assert.Equal(t, 0, snapshot.Workload)
	assert.Equal(t, 1, snapshot.Metrics.TasksCompleted)
	assert.InDelta(t, 1.0, snapshot.Metrics.SuccessRate, 0.001)
	assert.InDelta(t, 2.0, snapshot.Metrics.AvgCompletion, 0.001)
	assert.InDelta(t, 0.9, snapshot.Metrics.QualityMean, 0.001)

	require.Len(t, snapshot.Experience, 1)
	assert.Equal(t, "content", snapshot.Experience[0].TaskType)
	assert.InDelta(t, 0.9, snapshot.Experience[0].SuccessScore, 0.001)

	t.Run("failure moves the error rate", func(t *testing.T) {
		require.NoError(t, r.AssignTask("w1", "t2"))
		r.RecordResult(resultFor("w1", "t2", domain.ResultFailed, 0), task)

		snapshot, _ := r.Snapshot("w1")
		assert.Equal(t, 1, snapshot.Metrics.TasksFailed)
		assert.InDelta(t, 0.5, snapshot.Metrics.SuccessRate, 0.001)
		assert.InDelta(t, 0.5, snapshot.Metrics.ErrorRate, 0.001)
	})
}

func TestRegistry_ExperienceRingBounded(t *testing.T) {
	r := newTestRegistry()
	r.Register(&fakeWorker{id: "w1"})
	task := &domain.Task{ID: "t", Type: "content"}

	for i := 0; i < experienceRingSize+20; i++ {
		r.RecordResult(resultFor("w1", fmt.Sprintf("t%d", i), domain.ResultCompleted, 0.8), task)
	}

	snapshot, _ := r.Snapshot("w1")
	assert.Len(t, snapshot.Experience, experienceRingSize)
}

func TestRegistry_OutOfRotationOnErrorRate(t *testing.T) {
	r := newTestRegistry()
	now := time.Now().UTC()
	r.Register(&fakeWorker{id: "flaky"})
	task := &domain.Task{ID: "t", Type: "content"}

	// Three failures out of four dispatches: error rate 0.75 > 0.5 limit.
	r.RecordResult(resultFor("flaky", "t1", domain.ResultCompleted, 0.8), task)
	r.RecordResult(resultFor("flaky", "t2", domain.ResultFailed, 0), task)
	r.RecordResult(resultFor("flaky", "t3", domain.ResultFailed, 0), task)
	r.RecordResult(resultFor("flaky", "t4", domain.ResultFailed, 0), task)

	snapshot, _ := r.Snapshot("flaky")
	assert.True(t, snapshot.OutOfRotation)
	assert.Empty(t, r.Available(now), "out-of-rotation workers are not eligible")

	t.Run("restore puts it back", func(t *testing.T) {
		r.RestoreRotation("flaky")
		assert.Len(t, r.Available(now), 1)
	})
}

func TestRegistry_ExpertiseAndLoad(t *testing.T) {
	r := newTestRegistry()
	now := time.Now().UTC()

	r.Register(&fakeWorker{id: "w1", tags: []string{"writing", "seo"}})
	r.Register(&fakeWorker{id: "w2", tags: []string{"writing"}})

	expertise := r.AvailableExpertise(now)
	assert.Equal(t, 2, expertise["writing"])
	assert.Equal(t, 1, expertise["seo"])

	total, available := r.Counts(now)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, available)

	require.NoError(t, r.AssignTask("w1", "t1"))
	require.NoError(t, r.AssignTask("w1", "t2"))
	require.NoError(t, r.AssignTask("w1", "t3"))

	// w1 fully loaded (1.0), w2 idle (0.0).
	assert.InDelta(t, 0.5, r.SystemLoad(), 0.001)

	stats := r.WorkloadDistribution()
	assert.Equal(t, 2, stats.Workers)
	assert.InDelta(t, 0.5, stats.MeanUtilization, 0.001)
	assert.InDelta(t, 0.0, stats.Min, 0.001)
	assert.InDelta(t, 1.0, stats.Max, 0.001)
	assert.Greater(t, stats.StdDev, 0.0)
	assert.Equal(t, []string{"w1"}, stats.Overloaded)
}
