package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoutsos/agency/internal/scheduler"
)

// weeklyReportSchedule fires Monday 06:00 UTC.
const weeklyReportSchedule = "0 0 6 * * MON"

// RegisterJobs registers the recurring maintenance jobs with the scheduler.
func RegisterJobs(container *Container, log zerolog.Logger) error {
	cfg := container.Config

	rebalance := scheduler.NewRebalanceJob(container.Dispatcher, log)
	if err := container.Scheduler.AddJob(everySchedule(cfg.QueueRebalanceInterval), rebalance); err != nil {
		return fmt.Errorf("failed to register rebalance job: %w", err)
	}

	// Sweeping at half the staleness window bounds how long an orphaned
	// task can sit on a dead worker.
	sweep := scheduler.NewSweepJob(container.Dispatcher)
	if err := container.Scheduler.AddJob(everySchedule(cfg.HeartbeatStaleness/2), sweep); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	report := scheduler.NewWeeklyReportJob(container.Reporter, log)
	if err := container.Scheduler.AddJob(weeklyReportSchedule, report); err != nil {
		return fmt.Errorf("failed to register weekly report job: %w", err)
	}

	return nil
}

func everySchedule(interval time.Duration) string {
	if interval < time.Second {
		interval = time.Second
	}
	return fmt.Sprintf("@every %s", interval)
}
