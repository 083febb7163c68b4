package domain

import (
	"time"
)

// TaskStatus is the task lifecycle. Completed, failed and cancelled are
// terminal; a task holds at most one active assignment at a time.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Complexity is the declared difficulty of a task.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityCritical Complexity = "critical"
)

// Requirements is the submitter-supplied bag of constraints on a task.
type Requirements struct {
	RequiredCapabilities []string
	ClientTier           string // enterprise, premium, standard, basic
	StrategicImportance  string // critical, high, medium, low
	StakeholderLevel     string // ceo, executive, manager, team
	ResourceNeeds        map[string]string
	DependsOn            []string
	Blocks               []string
	RevenueType          string // direct_revenue, pipeline_impact, retention_impact, cost_savings
	Domain               string
}

// Task is a unit of work flowing from submission through the queue to a
// worker. The queue owns a queued task; once dequeued, ownership transfers
// to the Assignment.
type Task struct {
	ID           string
	Title        string
	Description  string
	Type         string
	Complexity   Complexity
	BasePriority int // 0..100, submitter supplied
	Requirements Requirements
	Deliverables map[string]string
	CreatedAt    time.Time
	Deadline     *time.Time
	// EstimatedHours is the declared effort; used for urgency crunch
	// detection and completion estimates.
	EstimatedHours   float64
	RevenuePotential float64
	ProjectID        string
	ClientID         string
	Status           TaskStatus
	FailureCount     int
}

// PriorityScore is the composite priority with its five sub-scores and the
// recompute triggers attached at scoring time.
type PriorityScore struct {
	Composite          float64 // 0..100
	Urgency            float64
	BusinessImpact     float64
	ResourceEfficiency float64
	RevenueImpact      float64
	Dependency         float64
	ComputedAt         time.Time
	Triggers           []RecomputeTrigger
}

// RecomputeTrigger names an event that forces re-scoring ahead of schedule.
type RecomputeTrigger string

const (
	TriggerSystemLoadChange         RecomputeTrigger = "system_load_change"
	TriggerWorkerAvailabilityChange RecomputeTrigger = "worker_availability_change"
	TriggerHourlyDeadlineCheck      RecomputeTrigger = "hourly_deadline_check"
	TriggerDailyDeadlineCheck       RecomputeTrigger = "daily_deadline_check"
	TriggerDependencyStateChange    RecomputeTrigger = "dependency_state_change"
	TriggerHighValueMonitoring      RecomputeTrigger = "high_value_monitoring"
)

// ExperienceEntry is one element of a worker's bounded rolling history.
type ExperienceEntry struct {
	TaskType        string
	Complexity      Complexity
	Domain          string
	SuccessScore    float64 // 0..1
	CompletionHours float64
	CompletedAt     time.Time
}

// PerformanceMetrics are a worker's rolling aggregates.
type PerformanceMetrics struct {
	SuccessRate     float64 // 0..1
	Efficiency      float64 // 0..1
	ErrorRate       float64 // 0..1
	AvgCompletion   float64 // hours
	QualityMean     float64 // 0..1
	TasksCompleted  int
	TasksFailed     int
	TotalDispatched int
}

// WorkerProfile is the registry's record of one worker. The Worker Registry
// exclusively owns mutation; reads go through snapshots.
type WorkerProfile struct {
	ID                 string
	Type               string
	Capabilities       []string
	Proficiency        map[string]float64 // per capability, 0..1
	Specializations    []string
	Experience         []ExperienceEntry // bounded ring, newest last
	Metrics            PerformanceMetrics
	Workload           int
	MaxCapacity        int
	LearningEfficiency float64 // 0..1
	LastHeartbeat      time.Time
	CurrentTasks       []string
	Suspect            bool
	OutOfRotation      bool
}

// CapacityRemaining is the number of additional tasks the worker can take.
func (p *WorkerProfile) CapacityRemaining() int {
	if r := p.MaxCapacity - p.Workload; r > 0 {
		return r
	}
	return 0
}

// Utilization is workload over capacity in [0,1].
func (p *WorkerProfile) Utilization() float64 {
	if p.MaxCapacity <= 0 {
		return 1.0
	}
	return float64(p.Workload) / float64(p.MaxCapacity)
}

// HasCapability reports whether the worker declares the tag.
func (p *WorkerProfile) HasCapability(tag string) bool {
	for _, c := range p.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Compatibility is the matcher's verdict on a (worker, task) pair.
type Compatibility struct {
	WorkerID        string
	TaskID          string
	Composite       float64 // 0..1
	SkillMatch      float64
	Experience      float64
	Performance     float64
	Availability    float64
	Confidence      float64 // 0.2..1
	Reasoning       string
	Recommendations []string
	ExactMatches    []string
	RelatedMatches  []string
	Gaps            []string
}

// Assignment is an immutable record binding a task to a worker at a point in
// time. It is created on dispatch and never mutated.
type Assignment struct {
	TaskID              string
	WorkerID            string
	AssignedAt          time.Time
	EstimatedCompletion time.Time
	Compatibility       float64
	Reasoning           string
}

// ResultStatus is the worker-reported outcome of processing a task.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
)

// TaskResult is what a worker reports back on the result channel.
type TaskResult struct {
	TaskID                string
	WorkerID              string
	Status                ResultStatus
	Deliverables          map[string]string
	QualityMetrics        map[string]float64
	PerformanceIndicators map[string]float64
	ErrorMessage          string
	StartedAt             time.Time
	FinishedAt            time.Time
	// RevenueAmount and CostAmount drive the ledger postings the
	// dispatcher submits after observing the result.
	RevenueAmount float64
	CostAmount    float64
}

// SystemContext is the scoring context shared by the priority engine and the
// queue: load fraction, capability histogram of available workers, and the
// dependency-state map.
type SystemContext struct {
	SystemLoad         float64 // 0..1
	TotalWorkers       int
	AvailableWorkers   int
	AvailableExpertise map[string]int
	DependencyStates   map[string]TaskStatus
	QueueDepth         int
	AverageWaitHours   float64
}
