// Package dispatch runs the task distribution loop: submissions flow through
// task analysis into the priority queue; a single dispatcher goroutine
// matches queued tasks to available workers, commits assignments and settles
// worker results, including the ledger postings completions produce.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/domain"
	"github.com/dkoutsos/agency/internal/events"
	"github.com/dkoutsos/agency/internal/ledger"
	"github.com/dkoutsos/agency/internal/match"
	"github.com/dkoutsos/agency/internal/priority"
	"github.com/dkoutsos/agency/internal/queue"
	"github.com/dkoutsos/agency/internal/workers"
)

const snapshotFileName = "queue.snapshot"

// Dispatcher owns task lifecycle state and queue mutation. One loop
// goroutine serializes dispatch cycles and result settlement; workers run in
// their own goroutines and report back on the results channel.
type Dispatcher struct {
	cfg      *config.Config
	queue    *queue.Queue
	registry *workers.Registry
	engine   *priority.Engine
	matcher  *match.Matcher
	ledger   *ledger.Processor
	events   *events.Manager
	log      zerolog.Logger

	trigger chan struct{}
	results chan domain.TaskResult
	stop    chan struct{}
	stopped chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu               sync.Mutex
	tasks            map[string]*domain.Task
	assignments      map[string]domain.Assignment
	failedBy         map[string]map[string]bool
	deadlineNotified map[string]bool
}

// New creates a dispatcher.
func New(cfg *config.Config, q *queue.Queue, registry *workers.Registry, engine *priority.Engine, matcher *match.Matcher, ledgerProc *ledger.Processor, ev *events.Manager, log zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:              cfg,
		queue:            q,
		registry:         registry,
		engine:           engine,
		matcher:          matcher,
		ledger:           ledgerProc,
		events:           ev,
		log:              log.With().Str("component", "dispatch").Logger(),
		trigger:          make(chan struct{}, 1),
		results:          make(chan domain.TaskResult, 64),
		stop:             make(chan struct{}),
		stopped:          make(chan struct{}),
		baseCtx:          ctx,
		cancel:           cancel,
		tasks:            make(map[string]*domain.Task),
		assignments:      make(map[string]domain.Assignment),
		failedBy:         make(map[string]map[string]bool),
		deadlineNotified: make(map[string]bool),
	}
}

// Start restores any queue snapshot from a previous shutdown and launches
// the dispatcher loop.
func (d *Dispatcher) Start() {
	d.restoreSnapshot()
	go d.run()
	d.log.Info().Msg("Dispatcher started")
}

// Stop drains the dispatcher: the loop exits, in-flight workers get the
// shutdown window to finish, late results are settled and the remaining
// queue is snapshotted to disk.
func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.stopped

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(d.cfg.ShutdownTimeout):
		d.log.Warn().Msg("Shutdown timeout reached, abandoning in-flight tasks")
		d.cancel()
	}

	// Settle whatever results arrived during the drain.
	for {
		select {
		case result := <-d.results:
			d.handleResult(&result)
		default:
			d.cancel()
			d.saveSnapshot()
			d.log.Info().Msg("Dispatcher stopped")
			return
		}
	}
}

// Trigger wakes the loop to look for dispatchable work. Non-blocking.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case <-d.stop:
			return
		case <-d.trigger:
			d.dispatchCycle()
		case result := <-d.results:
			d.handleResult(&result)
			d.dispatchCycle()
		}
	}
}

// Submit accepts a task for distribution. Missing type, capabilities,
// complexity and effort estimate are inferred from the description. Returns
// the task id, or a throttled / invalid-task error.
func (d *Dispatcher) Submit(title, description string, req domain.Requirements, deadline *time.Time, basePriority int) (string, error) {
	if description == "" {
		return "", domain.E(domain.KindInvalidTask, "description is required")
	}
	if basePriority < 0 || basePriority > 100 {
		return "", domain.Ef(domain.KindInvalidTask, "base priority %d outside [0,100]", basePriority)
	}

	now := time.Now().UTC()
	task := &domain.Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		BasePriority: basePriority,
		Requirements: req,
		CreatedAt:    now,
		Deadline:     deadline,
		Status:       domain.TaskPending,
	}
	analyzeTask(task, now)

	score := d.engine.Score(task, d.buildContext(now), now)
	if err := d.queue.Enqueue(task, score); err != nil {
		return "", err
	}

	d.mu.Lock()
	d.tasks[task.ID] = task
	d.mu.Unlock()

	estimatedCompletion := now.Add(time.Duration(task.EstimatedHours * float64(time.Hour)))
	d.events.EmitTaskAccepted(task.ID, estimatedCompletion)
	d.log.Info().
		Str("task_id", task.ID).
		Str("type", task.Type).
		Str("complexity", string(task.Complexity)).
		Float64("composite", score.Composite).
		Msg("Task accepted")

	d.Trigger()
	return task.ID, nil
}

// Task returns a copy of a known task.
func (d *Dispatcher) Task(taskID string) (domain.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	task, ok := d.tasks[taskID]
	if !ok {
		return domain.Task{}, false
	}
	return *task, true
}

// Assignment returns the active assignment for a task, if any.
func (d *Dispatcher) Assignment(taskID string) (domain.Assignment, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	assignment, ok := d.assignments[taskID]
	return assignment, ok
}

// dispatchCycle walks the eligible workers in capacity order and hands each
// the best queued task it covers, committing assignments that clear the
// compatibility floor.
func (d *Dispatcher) dispatchCycle() {
	now := time.Now().UTC()
	sysCtx := d.buildContext(now)

	for _, profile := range d.registry.Available(now) {
		worker := profile
		task, ok := d.queue.DequeueOptimal(&worker)
		if !ok {
			continue
		}

		if d.workerFailedTask(task.ID, worker.ID) {
			d.requeue(task, sysCtx, now)
			continue
		}

		compatibility := d.matcher.Evaluate(&worker, task, now)
		if compatibility.Composite < d.cfg.CompatibilityFloor {
			d.log.Debug().
				Str("task_id", task.ID).
				Str("worker_id", worker.ID).
				Float64("compatibility", compatibility.Composite).
				Msg("Compatibility below floor, skipping worker this round")
			d.requeue(task, sysCtx, now)
			continue
		}

		if err := d.commitAssignment(&worker, task, &compatibility, now); err != nil {
			d.log.Warn().Err(err).
				Str("task_id", task.ID).
				Str("worker_id", worker.ID).
				Msg("Assignment not committed")
			d.requeue(task, sysCtx, now)
		}
	}
}

// commitAssignment binds the task to the worker: workload accounting, a
// bounded acknowledgement from the plug-in, then the processing goroutine.
func (d *Dispatcher) commitAssignment(profile *domain.WorkerProfile, task *domain.Task, compatibility *domain.Compatibility, now time.Time) error {
	plugin, ok := d.registry.Worker(profile.ID)
	if !ok {
		return domain.Ef(domain.KindNoCompatibleWorker, "worker plug-in missing: %s", profile.ID)
	}

	if err := d.registry.AssignTask(profile.ID, task.ID); err != nil {
		return err
	}

	ack := make(chan domain.ValidationResult, 1)
	go func() { ack <- plugin.Validate(task) }()

	var validation domain.ValidationResult
	select {
	case validation = <-ack:
	case <-time.After(d.cfg.AssignmentTimeout):
		d.registry.ReleaseTask(profile.ID, task.ID)
		d.registry.MarkSuspect(profile.ID)
		return domain.Ef(domain.KindAssignmentTimeout, "worker %s did not acknowledge within %s", profile.ID, d.cfg.AssignmentTimeout)
	}
	if !validation.Accept {
		d.registry.ReleaseTask(profile.ID, task.ID)
		return domain.Ef(domain.KindNoCompatibleWorker, "worker %s declined: %s", profile.ID, validation.Reason)
	}

	estimatedHours := task.EstimatedHours
	if validation.EstimatedHours > 0 {
		estimatedHours = validation.EstimatedHours
	}
	assignment := domain.Assignment{
		TaskID:              task.ID,
		WorkerID:            profile.ID,
		AssignedAt:          now,
		EstimatedCompletion: now.Add(time.Duration(estimatedHours * float64(time.Hour))),
		Compatibility:       compatibility.Composite,
		Reasoning:           compatibility.Reasoning,
	}

	d.mu.Lock()
	task.Status = domain.TaskInProgress
	d.tasks[task.ID] = task
	d.assignments[task.ID] = assignment
	d.mu.Unlock()

	d.log.Info().
		Str("task_id", task.ID).
		Str("worker_id", profile.ID).
		Float64("compatibility", compatibility.Composite).
		Str("reasoning", compatibility.Reasoning).
		Msg("Task assigned")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		result := plugin.Process(d.baseCtx, task)
		result.TaskID = task.ID
		result.WorkerID = profile.ID
		if result.StartedAt.IsZero() {
			result.StartedAt = assignment.AssignedAt
		}
		if result.FinishedAt.IsZero() {
			result.FinishedAt = time.Now().UTC()
		}
		select {
		case d.results <- result:
		case <-d.stop:
			// Late result during shutdown; Stop drains the channel.
			select {
			case d.results <- result:
			default:
			}
		}
	}()

	return nil
}

// handleResult settles one worker result: metrics, task transition, events
// and the ledger postings a completion produces.
func (d *Dispatcher) handleResult(result *domain.TaskResult) {
	d.mu.Lock()
	task, ok := d.tasks[result.TaskID]
	if !ok {
		d.mu.Unlock()
		d.log.Warn().Str("task_id", result.TaskID).Msg("Result for unknown task")
		return
	}
	delete(d.assignments, result.TaskID)
	d.mu.Unlock()

	d.registry.RecordResult(result, task)

	if result.Status == domain.ResultCompleted {
		d.completeTask(task, result)
		return
	}
	d.failTask(task, result)
}

func (d *Dispatcher) completeTask(task *domain.Task, result *domain.TaskResult) {
	d.mu.Lock()
	task.Status = domain.TaskCompleted
	task.Deliverables = result.Deliverables
	d.mu.Unlock()

	if result.RevenueAmount > 0 {
		amount := decimal.NewFromFloat(result.RevenueAmount).Round(2)
		if _, err := d.ledger.SubmitRevenue(amount,
			fmt.Sprintf("Revenue from task: %s", task.Title),
			task.Type, task.ID, task.ProjectID, result.WorkerID); err != nil {
			d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to post task revenue")
		}
	}
	if result.CostAmount > 0 {
		amount := decimal.NewFromFloat(result.CostAmount).Round(2)
		if _, err := d.ledger.SubmitExpense(amount, domain.CategoryAgentCost,
			fmt.Sprintf("Execution cost for task: %s", task.Title),
			task.ID, task.ProjectID, result.WorkerID); err != nil {
			d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to post task cost")
		}
	}

	// Emitted after the postings so a subscriber reacting to the event
	// observes the settled balances.
	d.events.EmitTaskCompleted(task.ID, result.Deliverables, result.QualityMetrics)
	d.log.Info().
		Str("task_id", task.ID).
		Str("worker_id", result.WorkerID).
		Float64("hours", result.FinishedAt.Sub(result.StartedAt).Hours()).
		Msg("Task completed")
}

func (d *Dispatcher) failTask(task *domain.Task, result *domain.TaskResult) {
	d.mu.Lock()
	task.FailureCount++
	if d.failedBy[task.ID] == nil {
		d.failedBy[task.ID] = make(map[string]bool)
	}
	d.failedBy[task.ID][result.WorkerID] = true
	terminal := task.FailureCount >= d.cfg.MaxTaskFailures
	if terminal {
		task.Status = domain.TaskFailed
	} else {
		task.Status = domain.TaskPending
	}
	d.mu.Unlock()

	if terminal {
		d.events.EmitTaskFailed(task.ID, result.ErrorMessage, "max_failures")
		d.log.Warn().
			Str("task_id", task.ID).
			Int("failures", task.FailureCount).
			Msg("Task failed terminally")
		return
	}

	now := time.Now().UTC()
	d.requeue(task, d.buildContext(now), now)
	d.log.Info().
		Str("task_id", task.ID).
		Int("failures", task.FailureCount).
		Msg("Task re-queued after failure")
}

// SweepStaleWorkers reclaims tasks from workers with lapsed heartbeats and
// re-queues them with boosted urgency.
func (d *Dispatcher) SweepStaleWorkers() {
	now := time.Now().UTC()
	orphaned := d.registry.SweepStale(now)
	if len(orphaned) == 0 {
		return
	}

	sysCtx := d.buildContext(now)
	for workerID, taskIDs := range orphaned {
		d.events.Emit(events.WorkerUnavailable, "dispatch", map[string]interface{}{
			"worker_id":      workerID,
			"orphaned_tasks": taskIDs,
		})
		for _, taskID := range taskIDs {
			d.mu.Lock()
			task, ok := d.tasks[taskID]
			if ok {
				delete(d.assignments, taskID)
				task.Status = domain.TaskPending
			}
			d.mu.Unlock()
			if !ok {
				continue
			}
			score := d.engine.ScoreBoosted(task, sysCtx, now)
			if err := d.queue.Enqueue(task, score); err != nil {
				d.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to re-queue orphaned task")
			}
		}
	}
	d.Trigger()
}

// RebalanceQueue rescores every queued task against the current context and
// surfaces deadline breaches. Run on the scheduler cadence and on explicit
// load-change notification.
func (d *Dispatcher) RebalanceQueue() int {
	now := time.Now().UTC()
	rescored := d.queue.Rebalance(d.buildContext(now), now)
	d.notifyDeadlineBreaches(now)
	d.Trigger()
	return rescored
}

// NotifySystemLoadChange forces an immediate rebalance.
func (d *Dispatcher) NotifySystemLoadChange() {
	d.RebalanceQueue()
}

func (d *Dispatcher) notifyDeadlineBreaches(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, task := range d.tasks {
		if task.Deadline == nil || task.Status.Terminal() || d.deadlineNotified[id] {
			continue
		}
		if now.After(*task.Deadline) {
			d.deadlineNotified[id] = true
			d.events.Emit(events.DeadlineExceeded, "dispatch", map[string]interface{}{
				"task_id":  id,
				"deadline": task.Deadline.UTC().Format(time.RFC3339),
				"status":   string(task.Status),
			})
		}
	}
}

// requeue puts a task back with a freshly computed score.
func (d *Dispatcher) requeue(task *domain.Task, sysCtx *domain.SystemContext, now time.Time) {
	d.mu.Lock()
	task.Status = domain.TaskPending
	d.mu.Unlock()

	score := d.engine.Score(task, sysCtx, now)
	if err := d.queue.Enqueue(task, score); err != nil {
		d.log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to re-queue task")
	}
}

func (d *Dispatcher) workerFailedTask(taskID, workerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failedBy[taskID][workerID]
}

// TasksByStatus counts known tasks per lifecycle state.
func (d *Dispatcher) TasksByStatus() map[domain.TaskStatus]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := make(map[domain.TaskStatus]int)
	for _, task := range d.tasks {
		counts[task.Status]++
	}
	return counts
}

func (d *Dispatcher) snapshotPath() string {
	return filepath.Join(d.cfg.DataDir, snapshotFileName)
}

func (d *Dispatcher) saveSnapshot() {
	if d.queue.Depth() == 0 {
		_ = os.Remove(d.snapshotPath())
		return
	}
	data, err := d.queue.Snapshot()
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to snapshot queue")
		return
	}
	if err := os.WriteFile(d.snapshotPath(), data, 0644); err != nil {
		d.log.Error().Err(err).Msg("Failed to write queue snapshot")
		return
	}
	d.log.Info().Int("depth", d.queue.Depth()).Str("path", d.snapshotPath()).Msg("Queue snapshot saved")
}

func (d *Dispatcher) restoreSnapshot() {
	data, err := os.ReadFile(d.snapshotPath())
	if err != nil {
		return
	}
	restored, err := d.queue.Restore(data)
	if err != nil {
		d.log.Error().Err(err).Msg("Failed to restore queue snapshot")
		return
	}
	_ = os.Remove(d.snapshotPath())
	if restored == 0 {
		return
	}

	// Restored tasks re-enter the dispatcher's records.
	d.mu.Lock()
	for _, task := range d.queue.Queued() {
		if _, known := d.tasks[task.ID]; !known {
			d.tasks[task.ID] = task
		}
	}
	d.mu.Unlock()
	d.log.Info().Int("restored", restored).Msg("Resumed queued tasks from snapshot")
}
