// Package queue implements the priority queue: a max-heap keyed by composite
// priority score with FIFO tie-breaking, capability-aware dequeue and
// periodic rebalancing.
package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkoutsos/agency/internal/domain"
	"github.com/dkoutsos/agency/internal/events"
	"github.com/dkoutsos/agency/internal/priority"
)

// minCapabilityOverlap is the fraction of a task's required capabilities a
// worker must cover for dequeueOptimal to hand the task over.
const minCapabilityOverlap = 0.7

type item struct {
	task       *domain.Task
	score      domain.PriorityScore
	seq        uint64
	enqueuedAt time.Time
	index      int
}

// itemHeap orders by composite score descending, insertion sequence
// ascending on ties (FIFO).
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].score.Composite != h[j].score.Composite {
		return h[i].score.Composite > h[j].score.Composite
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Status is the queue's operational snapshot.
type Status struct {
	Depth            int
	HighWater        int
	Enqueued         uint64
	Dequeued         uint64
	AverageWaitHours float64
	OldestWaitHours  float64
}

// PendingSummary aggregates the queued work.
type PendingSummary struct {
	Total            int
	ByType           map[string]int
	ByComplexity     map[domain.Complexity]int
	AverageComposite float64
	HighestComposite float64
}

// Queue owns all queued tasks. Every operation takes the one queue lock;
// once a task is dequeued, ownership transfers to the caller.
type Queue struct {
	engine    *priority.Engine
	events    *events.Manager
	log       zerolog.Logger
	highWater int

	mu    sync.Mutex
	heap  itemHeap
	byID  map[string]*item
	seq   uint64

	enqueued       uint64
	dequeued       uint64
	totalWaitHours float64
}

// New creates an empty queue with the given backpressure high-water mark.
func New(engine *priority.Engine, ev *events.Manager, highWater int, log zerolog.Logger) *Queue {
	return &Queue{
		engine:    engine,
		events:    ev,
		log:       log.With().Str("component", "queue").Logger(),
		highWater: highWater,
		byID:      make(map[string]*item),
	}
}

// Enqueue adds a scored task. At the high-water mark the submission is
// throttled and a load warning goes out on the events channel.
func (q *Queue) Enqueue(task *domain.Task, score domain.PriorityScore) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) >= q.highWater {
		q.events.EmitLoadWarning(len(q.heap))
		return domain.Ef(domain.KindThrottled, "queue at high-water mark (%d)", q.highWater)
	}
	if _, dup := q.byID[task.ID]; dup {
		return domain.Ef(domain.KindConstraintViolation, "task already queued: %s", task.ID)
	}

	q.seq++
	it := &item{
		task:       task,
		score:      score,
		seq:        q.seq,
		enqueuedAt: time.Now().UTC(),
	}
	heap.Push(&q.heap, it)
	q.byID[task.ID] = it
	q.enqueued++

	q.log.Debug().
		Str("task_id", task.ID).
		Float64("composite", score.Composite).
		Int("depth", len(q.heap)).
		Msg("Task enqueued")

	return nil
}

// DequeueOptimal returns the highest-priority task whose required
// capabilities the worker covers at the minimum overlap. Skipped tasks stay
// queued; the scan never mutates heap order.
func (q *Queue) DequeueOptimal(worker *domain.WorkerProfile) (*domain.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	var bestItem *item
	for _, it := range q.heap {
		if capabilityOverlap(it.task.Requirements.RequiredCapabilities, worker) < minCapabilityOverlap {
			continue
		}
		if bestItem == nil || q.heap.Less(it.index, best) {
			best = it.index
			bestItem = it
		}
	}
	if bestItem == nil {
		return nil, false
	}

	heap.Remove(&q.heap, bestItem.index)
	delete(q.byID, bestItem.task.ID)
	q.dequeued++
	q.totalWaitHours += time.Since(bestItem.enqueuedAt).Hours()

	return bestItem.task, true
}

// Remove drops a task from the queue, for cancellations.
func (q *Queue) Remove(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[taskID]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byID, taskID)
	return true
}

// Queued returns the queued tasks in no particular order. Used to rebuild
// dispatcher records after a snapshot restore.
func (q *Queue) Queued() []*domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := make([]*domain.Task, 0, len(q.heap))
	for _, it := range q.heap {
		tasks = append(tasks, it.task)
	}
	return tasks
}

// Score returns the current priority score of a queued task.
func (q *Queue) Score(taskID string) (domain.PriorityScore, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[taskID]
	if !ok {
		return domain.PriorityScore{}, false
	}
	return it.score, true
}

// Depth returns the number of queued tasks.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Rebalance recomputes every queued task's composite score against the
// current context and restores heap order. Returns the number of rescored
// tasks. Rebalancing an unchanged context is idempotent: FIFO sequence
// numbers are preserved, so relative order of equal scores never churns.
func (q *Queue) Rebalance(ctx *domain.SystemContext, now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.heap {
		it.score = q.engine.Score(it.task, ctx, now)
	}
	heap.Init(&q.heap)

	q.log.Debug().Int("rescored", len(q.heap)).Msg("Queue rebalanced")
	return len(q.heap)
}

// Status reports queue depth and throughput counters.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := Status{
		Depth:     len(q.heap),
		HighWater: q.highWater,
		Enqueued:  q.enqueued,
		Dequeued:  q.dequeued,
	}
	if q.dequeued > 0 {
		status.AverageWaitHours = q.totalWaitHours / float64(q.dequeued)
	}
	for _, it := range q.heap {
		if wait := time.Since(it.enqueuedAt).Hours(); wait > status.OldestWaitHours {
			status.OldestWaitHours = wait
		}
	}
	return status
}

// PendingSummary aggregates queued tasks by type and complexity.
func (q *Queue) PendingSummary() PendingSummary {
	q.mu.Lock()
	defer q.mu.Unlock()

	summary := PendingSummary{
		Total:        len(q.heap),
		ByType:       make(map[string]int),
		ByComplexity: make(map[domain.Complexity]int),
	}
	total := 0.0
	for _, it := range q.heap {
		summary.ByType[it.task.Type]++
		summary.ByComplexity[it.task.Complexity]++
		total += it.score.Composite
		if it.score.Composite > summary.HighestComposite {
			summary.HighestComposite = it.score.Composite
		}
	}
	if len(q.heap) > 0 {
		summary.AverageComposite = total / float64(len(q.heap))
	}
	return summary
}

type snapshotEntry struct {
	Task       domain.Task          `msgpack:"task"`
	Score      domain.PriorityScore `msgpack:"score"`
	EnqueuedAt time.Time            `msgpack:"enqueued_at"`
}

type snapshot struct {
	SavedAt time.Time       `msgpack:"saved_at"`
	Entries []snapshotEntry `msgpack:"entries"`
}

// Snapshot serializes all queued tasks for shutdown persistence.
func (q *Queue) Snapshot() ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := snapshot{SavedAt: time.Now().UTC()}
	for _, it := range q.heap {
		snap.Entries = append(snap.Entries, snapshotEntry{
			Task:       *it.task,
			Score:      it.score,
			EnqueuedAt: it.enqueuedAt,
		})
	}

	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, domain.Wrap(domain.KindSerializationFailure, "failed to encode queue snapshot", err)
	}
	return data, nil
}

// Restore re-enqueues tasks from a snapshot, keeping their scores and
// original enqueue times so aging carries across restarts. Returns the
// number of restored tasks.
func (q *Queue) Restore(data []byte) (int, error) {
	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return 0, domain.Wrap(domain.KindSerializationFailure, "failed to decode queue snapshot", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	restored := 0
	for i := range snap.Entries {
		entry := &snap.Entries[i]
		if _, dup := q.byID[entry.Task.ID]; dup {
			continue
		}
		q.seq++
		task := entry.Task
		it := &item{
			task:       &task,
			score:      entry.Score,
			seq:        q.seq,
			enqueuedAt: entry.EnqueuedAt,
		}
		heap.Push(&q.heap, it)
		q.byID[task.ID] = it
		restored++
	}

	if restored > 0 {
		q.log.Info().Int("restored", restored).Msg("Queue restored from snapshot")
	}
	return restored, nil
}

// capabilityOverlap is the fraction of required tags the worker declares.
// A task with no required capabilities matches every worker.
func capabilityOverlap(required []string, worker *domain.WorkerProfile) float64 {
	if len(required) == 0 {
		return 1.0
	}
	matched := 0
	for _, tag := range required {
		if worker.HasCapability(tag) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}
