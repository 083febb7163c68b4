// Package events implements the stakeholder events channel. Typed events are
// the only place error kinds cross the system boundary; each carries a stable
// kind tag plus a human-readable message, never a raw error.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType represents different stakeholder event types
type EventType string

const (
	TaskAccepted      EventType = "TASK_ACCEPTED"
	TaskCompleted     EventType = "TASK_COMPLETED"
	TaskFailed        EventType = "TASK_FAILED"
	LoadWarning       EventType = "LOAD_WARNING"
	ReportReady       EventType = "REPORT_READY"
	WorkerUnavailable EventType = "WORKER_UNAVAILABLE"
	DeadlineExceeded  EventType = "DEADLINE_EXCEEDED"
)

// Event represents a stakeholder-visible system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}

// Manager handles event emission, logging and fan-out to subscribers.
// Emission never blocks: a slow subscriber drops events rather than stalling
// the dispatcher or the ledger.
type Manager struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs []chan Event
}

// NewManager creates a new event manager
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log: log.With().Str("component", "events").Logger(),
	}
}

// Subscribe returns a buffered channel receiving all subsequent events.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Emit emits an event to the log and all subscribers.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than block.
		}
	}
}

// EmitTaskAccepted reports a newly accepted task with its completion estimate.
func (m *Manager) EmitTaskAccepted(taskID string, estimatedCompletion time.Time) {
	m.Emit(TaskAccepted, "dispatcher", map[string]interface{}{
		"task_id":              taskID,
		"estimated_completion": estimatedCompletion.UTC().Format(time.RFC3339),
	})
}

// EmitTaskCompleted reports a completed task with its deliverables and
// quality metrics.
func (m *Manager) EmitTaskCompleted(taskID string, deliverables map[string]string, quality map[string]float64) {
	m.Emit(TaskCompleted, "dispatcher", map[string]interface{}{
		"task_id":         taskID,
		"deliverables":    deliverables,
		"quality_metrics": quality,
	})
}

// EmitTaskFailed reports a terminally failed task.
func (m *Manager) EmitTaskFailed(taskID, reason, kind string) {
	m.Emit(TaskFailed, "dispatcher", map[string]interface{}{
		"task_id": taskID,
		"reason":  reason,
		"kind":    kind,
	})
}

// EmitLoadWarning signals queue backpressure.
func (m *Manager) EmitLoadWarning(queueDepth int) {
	m.Emit(LoadWarning, "queue", map[string]interface{}{
		"queue_depth": queueDepth,
	})
}

// EmitReportReady announces a generated financial report.
func (m *Manager) EmitReportReady(reportID string, summary map[string]interface{}) {
	m.Emit(ReportReady, "reporting", map[string]interface{}{
		"report_id": reportID,
		"summary":   summary,
	})
}
