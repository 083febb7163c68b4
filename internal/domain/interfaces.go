package domain

import "context"

// CapabilitySet is what a worker plug-in declares about itself.
type CapabilitySet struct {
	Tags          []string
	Proficiencies map[string]float64
}

// ValidationResult is a worker's answer to "can you take this task".
type ValidationResult struct {
	Accept         bool
	Reason         string
	EstimatedHours float64
}

// Worker is the plug-in contract each specialized executor satisfies.
// Specialized worker classes collapse to this interface plus a tag set: a
// "marketing worker" is any implementation declaring marketing-cluster tags.
// Workers must publish heartbeats at no more than half the staleness window.
type Worker interface {
	ID() string
	Type() string
	Capabilities() CapabilitySet
	// Validate acknowledges an assignment. The dispatcher bounds this
	// call with the assignment timeout; failure to answer revokes the
	// assignment.
	Validate(task *Task) ValidationResult
	// Process executes the task. It may block on external resources; the
	// dispatcher never waits on it synchronously.
	Process(ctx context.Context, task *Task) TaskResult
}
