package dispatch

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dkoutsos/agency/internal/domain"
	"github.com/dkoutsos/agency/internal/queue"
	"github.com/dkoutsos/agency/internal/workers"
)

// HostStats is best-effort host telemetry attached to the status report.
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  uint64
}

// Status is the dispatcher's aggregated operational snapshot.
type Status struct {
	Queue            queue.Status
	Pending          queue.PendingSummary
	TotalWorkers     int
	AvailableWorkers int
	SystemLoad       float64
	Workload         workers.WorkloadStats
	TasksByStatus    map[domain.TaskStatus]int
	Host             HostStats
}

// Status aggregates queue, worker and host state.
func (d *Dispatcher) Status() Status {
	now := time.Now().UTC()
	total, available := d.registry.Counts(now)
	return Status{
		Queue:            d.queue.Status(),
		Pending:          d.queue.PendingSummary(),
		TotalWorkers:     total,
		AvailableWorkers: available,
		SystemLoad:       d.registry.SystemLoad(),
		Workload:         d.registry.WorkloadDistribution(),
		TasksByStatus:    d.TasksByStatus(),
		Host:             hostStats(),
	}
}

// buildContext assembles the scoring context the priority engine consumes:
// load fraction, the capability histogram of available workers and the
// dependency-state map over known tasks.
func (d *Dispatcher) buildContext(now time.Time) *domain.SystemContext {
	total, available := d.registry.Counts(now)
	queueStatus := d.queue.Status()

	d.mu.Lock()
	states := make(map[string]domain.TaskStatus, len(d.tasks))
	for id, task := range d.tasks {
		states[id] = task.Status
	}
	d.mu.Unlock()

	return &domain.SystemContext{
		SystemLoad:         d.registry.SystemLoad(),
		TotalWorkers:       total,
		AvailableWorkers:   available,
		AvailableExpertise: d.registry.AvailableExpertise(now),
		DependencyStates:   states,
		QueueDepth:         queueStatus.Depth,
		AverageWaitHours:   queueStatus.AverageWaitHours,
	}
}

// hostStats samples process-host CPU and memory. Failures degrade to zero
// values; host telemetry never gates dispatch decisions.
func hostStats() HostStats {
	var stats HostStats
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemoryPercent = vm.UsedPercent
		stats.MemoryUsedMB = vm.Used / 1024 / 1024
	}
	return stats
}
