package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkoutsos/agency/internal/domain"
)

// SimulatedWorker is an in-process worker plug-in that completes every task
// after a fixed delay. It backs the demo entrypoint and load exercises; real
// deployments register plug-ins speaking to actual executors.
type SimulatedWorker struct {
	id          string
	workerType  string
	proficiency map[string]float64
	delay       time.Duration
	quality     float64
	hourlyCost  float64
}

// NewSimulatedWorker creates a simulated worker declaring the given
// capability proficiencies.
func NewSimulatedWorker(id, workerType string, proficiency map[string]float64, delay time.Duration) *SimulatedWorker {
	return &SimulatedWorker{
		id:          id,
		workerType:  workerType,
		proficiency: proficiency,
		delay:       delay,
		quality:     0.85,
		hourlyCost:  12.50,
	}
}

func (w *SimulatedWorker) ID() string   { return w.id }
func (w *SimulatedWorker) Type() string { return w.workerType }

func (w *SimulatedWorker) Capabilities() domain.CapabilitySet {
	tags := make([]string, 0, len(w.proficiency))
	for tag := range w.proficiency {
		tags = append(tags, tag)
	}
	return domain.CapabilitySet{Tags: tags, Proficiencies: w.proficiency}
}

func (w *SimulatedWorker) Validate(task *domain.Task) domain.ValidationResult {
	return domain.ValidationResult{Accept: true, EstimatedHours: task.EstimatedHours}
}

// Process simulates execution: wait out the configured delay, then report a
// completion with deliverables, a quality score and the cost of the effort.
// Cancellation during the delay reports a failure.
func (w *SimulatedWorker) Process(ctx context.Context, task *domain.Task) domain.TaskResult {
	started := time.Now().UTC()

	select {
	case <-time.After(w.delay):
	case <-ctx.Done():
		return domain.TaskResult{
			TaskID:       task.ID,
			WorkerID:     w.id,
			Status:       domain.ResultFailed,
			ErrorMessage: "execution cancelled",
			StartedAt:    started,
			FinishedAt:   time.Now().UTC(),
		}
	}

	return domain.TaskResult{
		TaskID:   task.ID,
		WorkerID: w.id,
		Status:   domain.ResultCompleted,
		Deliverables: map[string]string{
			"summary": fmt.Sprintf("Completed %s task: %s", task.Type, task.Title),
		},
		QualityMetrics: map[string]float64{"overall": w.quality},
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
		RevenueAmount:  task.RevenuePotential,
		CostAmount:     task.EstimatedHours * w.hourlyCost,
	}
}
