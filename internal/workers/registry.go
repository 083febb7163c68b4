// Package workers maintains the registry of worker plug-ins: profiles,
// heartbeats, workload accounting, rolling performance metrics and the
// bounded experience history feeding the capability matcher.
package workers

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/domain"
)

// experienceRingSize bounds the rolling history kept per worker.
const experienceRingSize = 100

// minDispatchesForRotation is how many results a worker must have reported
// before the error-rate breach can pull it out of rotation.
const minDispatchesForRotation = 4

// defaultLearningEfficiency applies when a plug-in does not declare one.
const defaultLearningEfficiency = 0.5

// WorkloadStats summarizes the utilization distribution across workers.
type WorkloadStats struct {
	Workers         int
	MeanUtilization float64
	StdDev          float64
	Min             float64
	Max             float64
	Overloaded      []string // workers at or above full capacity
}

// Registry exclusively owns WorkerProfile mutation. Reads hand out copies.
type Registry struct {
	cfg *config.Config
	log zerolog.Logger

	mu       sync.RWMutex
	profiles map[string]*domain.WorkerProfile
	workers  map[string]domain.Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry(cfg *config.Config, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		log:      log.With().Str("component", "workers").Logger(),
		profiles: make(map[string]*domain.WorkerProfile),
		workers:  make(map[string]domain.Worker),
	}
}

// Register adds a worker plug-in and builds its profile from the declared
// capability set. Re-registering an id replaces the plug-in but keeps the
// accumulated profile.
func (r *Registry) Register(w domain.Worker) domain.WorkerProfile {
	caps := w.Capabilities()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.workers[w.ID()] = w
	profile, ok := r.profiles[w.ID()]
	if !ok {
		profile = &domain.WorkerProfile{
			ID:                 w.ID(),
			Type:               w.Type(),
			MaxCapacity:        r.cfg.WorkerCapacityDefault,
			LearningEfficiency: defaultLearningEfficiency,
			LastHeartbeat:      time.Now().UTC(),
		}
		r.profiles[w.ID()] = profile
	}
	profile.Capabilities = append([]string(nil), caps.Tags...)
	profile.Proficiency = make(map[string]float64, len(caps.Proficiencies))
	for tag, p := range caps.Proficiencies {
		profile.Proficiency[tag] = p
	}

	r.log.Info().
		Str("worker_id", w.ID()).
		Str("type", w.Type()).
		Strs("capabilities", profile.Capabilities).
		Msg("Worker registered")

	return copyProfile(profile)
}

// Unregister removes a worker and returns the task ids it was carrying so
// the dispatcher can re-enqueue them.
func (r *Registry) Unregister(workerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[workerID]
	if !ok {
		return nil
	}
	orphaned := append([]string(nil), profile.CurrentTasks...)
	delete(r.profiles, workerID)
	delete(r.workers, workerID)

	r.log.Info().Str("worker_id", workerID).Int("orphaned_tasks", len(orphaned)).Msg("Worker unregistered")
	return orphaned
}

// Worker returns the registered plug-in instance.
func (r *Registry) Worker(workerID string) (domain.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[workerID]
	return w, ok
}

// Snapshot returns a copy of one profile.
func (r *Registry) Snapshot(workerID string) (domain.WorkerProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	profile, ok := r.profiles[workerID]
	if !ok {
		return domain.WorkerProfile{}, false
	}
	return copyProfile(profile), true
}

// Heartbeat records liveness and clears the suspect flag.
func (r *Registry) Heartbeat(workerID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile, ok := r.profiles[workerID]; ok {
		profile.LastHeartbeat = at.UTC()
		profile.Suspect = false
	}
}

// Available returns copies of the workers eligible for assignment: spare
// capacity, fresh heartbeat, in rotation. Ordered by remaining capacity
// descending, id ascending on ties.
func (r *Registry) Available(now time.Time) []domain.WorkerProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var available []domain.WorkerProfile
	for _, profile := range r.profiles {
		if profile.OutOfRotation || profile.Suspect {
			continue
		}
		if profile.CapacityRemaining() == 0 {
			continue
		}
		if now.Sub(profile.LastHeartbeat) > r.cfg.HeartbeatStaleness {
			continue
		}
		available = append(available, copyProfile(profile))
	}

	sort.Slice(available, func(i, j int) bool {
		ri, rj := available[i].CapacityRemaining(), available[j].CapacityRemaining()
		if ri != rj {
			return ri > rj
		}
		return available[i].ID < available[j].ID
	})
	return available
}

// SweepStale marks workers with lapsed heartbeats as suspect, strips their
// in-flight tasks and returns worker id -> orphaned task ids.
func (r *Registry) SweepStale(now time.Time) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	orphaned := make(map[string][]string)
	for id, profile := range r.profiles {
		if profile.Suspect || now.Sub(profile.LastHeartbeat) <= r.cfg.HeartbeatStaleness {
			continue
		}
		if len(profile.CurrentTasks) > 0 {
			orphaned[id] = append([]string(nil), profile.CurrentTasks...)
		} else {
			orphaned[id] = nil
		}
		profile.Suspect = true
		profile.CurrentTasks = nil
		profile.Workload = 0

		r.log.Warn().
			Str("worker_id", id).
			Time("last_heartbeat", profile.LastHeartbeat).
			Int("orphaned_tasks", len(orphaned[id])).
			Msg("Worker heartbeat stale")
	}
	return orphaned
}

// AssignTask increments the worker's workload. Fails when the worker is
// unknown or already at capacity.
func (r *Registry) AssignTask(workerID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[workerID]
	if !ok {
		return domain.Ef(domain.KindNoCompatibleWorker, "worker not registered: %s", workerID)
	}
	if profile.CapacityRemaining() == 0 {
		return domain.Ef(domain.KindNoCompatibleWorker, "worker at capacity: %s", workerID)
	}
	profile.Workload++
	profile.CurrentTasks = append(profile.CurrentTasks, taskID)
	return nil
}

// ReleaseTask decrements workload without recording a result, for revoked
// assignments.
func (r *Registry) ReleaseTask(workerID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[workerID]
	if !ok {
		return
	}
	removeTask(profile, taskID)
}

// MarkSuspect flags a worker that failed to acknowledge an assignment.
func (r *Registry) MarkSuspect(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile, ok := r.profiles[workerID]; ok {
		profile.Suspect = true
	}
}

// RecordResult settles a finished task: decrements workload, folds the
// result into the rolling metrics, appends to the bounded experience ring
// and re-evaluates the error-rate rotation gate.
func (r *Registry) RecordResult(result *domain.TaskResult, task *domain.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[result.WorkerID]
	if !ok {
		return
	}
	removeTask(profile, result.TaskID)

	m := &profile.Metrics
	m.TotalDispatched++
	completionHours := result.FinishedAt.Sub(result.StartedAt).Hours()

	success := 0.0
	if result.Status == domain.ResultCompleted {
		m.TasksCompleted++
		success = 1.0
		m.AvgCompletion = rollIn(m.AvgCompletion, completionHours, m.TasksCompleted)
		if quality, ok := meanQuality(result.QualityMetrics); ok {
			m.QualityMean = rollIn(m.QualityMean, quality, m.TasksCompleted)
			success = quality
		}
		if task.EstimatedHours > 0 && completionHours > 0 {
			ratio := task.EstimatedHours / completionHours
			if ratio > 1 {
				ratio = 1
			}
			m.Efficiency = rollIn(m.Efficiency, ratio, m.TasksCompleted)
		}
	} else {
		m.TasksFailed++
	}
	m.SuccessRate = float64(m.TasksCompleted) / float64(m.TotalDispatched)
	m.ErrorRate = float64(m.TasksFailed) / float64(m.TotalDispatched)

	profile.Experience = append(profile.Experience, domain.ExperienceEntry{
		TaskType:        task.Type,
		Complexity:      task.Complexity,
		Domain:          task.Requirements.Domain,
		SuccessScore:    success,
		CompletionHours: completionHours,
		CompletedAt:     result.FinishedAt.UTC(),
	})
	if len(profile.Experience) > experienceRingSize {
		profile.Experience = profile.Experience[len(profile.Experience)-experienceRingSize:]
	}

	if m.TotalDispatched >= minDispatchesForRotation && m.ErrorRate > r.cfg.WorkerErrorRateLimit {
		if !profile.OutOfRotation {
			profile.OutOfRotation = true
			r.log.Warn().
				Str("worker_id", profile.ID).
				Float64("error_rate", m.ErrorRate).
				Msg("Worker pulled out of rotation")
		}
	}
}

// RestoreRotation puts a worker back in rotation after intervention.
func (r *Registry) RestoreRotation(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile, ok := r.profiles[workerID]; ok {
		profile.OutOfRotation = false
		profile.Metrics.TasksFailed = 0
		profile.Metrics.ErrorRate = 0
	}
}

// AvailableExpertise is the capability histogram over eligible workers.
func (r *Registry) AvailableExpertise(now time.Time) map[string]int {
	histogram := make(map[string]int)
	for _, profile := range r.Available(now) {
		for _, tag := range profile.Capabilities {
			histogram[tag]++
		}
	}
	return histogram
}

// Counts returns total and currently eligible worker counts.
func (r *Registry) Counts(now time.Time) (total, available int) {
	r.mu.RLock()
	total = len(r.profiles)
	r.mu.RUnlock()
	return total, len(r.Available(now))
}

// SystemLoad is the mean utilization across all registered workers.
func (r *Registry) SystemLoad() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.profiles) == 0 {
		return 0
	}
	total := 0.0
	for _, profile := range r.profiles {
		total += profile.Utilization()
	}
	return total / float64(len(r.profiles))
}

// WorkloadDistribution summarizes worker utilization for status reporting
// and load-balance decisions.
func (r *Registry) WorkloadDistribution() WorkloadStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := WorkloadStats{Workers: len(r.profiles)}
	if len(r.profiles) == 0 {
		return stats
	}

	utilizations := make([]float64, 0, len(r.profiles))
	stats.Min = 1.0
	for id, profile := range r.profiles {
		u := profile.Utilization()
		utilizations = append(utilizations, u)
		if u < stats.Min {
			stats.Min = u
		}
		if u > stats.Max {
			stats.Max = u
		}
		if profile.CapacityRemaining() == 0 {
			stats.Overloaded = append(stats.Overloaded, id)
		}
	}
	stats.MeanUtilization = stat.Mean(utilizations, nil)
	if len(utilizations) > 1 {
		stats.StdDev = stat.StdDev(utilizations, nil)
	}
	sort.Strings(stats.Overloaded)
	return stats
}

func removeTask(profile *domain.WorkerProfile, taskID string) {
	for i, id := range profile.CurrentTasks {
		if id == taskID {
			profile.CurrentTasks = append(profile.CurrentTasks[:i], profile.CurrentTasks[i+1:]...)
			break
		}
	}
	if profile.Workload > 0 {
		profile.Workload--
	}
}

// rollIn folds a new sample into a running mean over n samples.
func rollIn(current, sample float64, n int) float64 {
	if n <= 1 {
		return sample
	}
	return current + (sample-current)/float64(n)
}

func meanQuality(metrics map[string]float64) (float64, bool) {
	if len(metrics) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range metrics {
		sum += v
	}
	return sum / float64(len(metrics)), true
}

func copyProfile(p *domain.WorkerProfile) domain.WorkerProfile {
	cp := *p
	cp.Capabilities = append([]string(nil), p.Capabilities...)
	cp.Specializations = append([]string(nil), p.Specializations...)
	cp.CurrentTasks = append([]string(nil), p.CurrentTasks...)
	cp.Experience = append([]domain.ExperienceEntry(nil), p.Experience...)
	cp.Proficiency = make(map[string]float64, len(p.Proficiency))
	for tag, v := range p.Proficiency {
		cp.Proficiency[tag] = v
	}
	return cp
}
