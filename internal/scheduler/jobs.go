package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/dkoutsos/agency/internal/domain"
)

// QueueRebalancer is the dispatcher surface the rebalance and sweep jobs use.
type QueueRebalancer interface {
	RebalanceQueue() int
	SweepStaleWorkers()
}

// ReportGenerator is the ledger surface the weekly report job uses.
type ReportGenerator interface {
	GenerateWeeklyReport() (*domain.Report, error)
}

// RebalanceJob periodically re-scores the whole queue so aging and load
// changes move waiting tasks.
type RebalanceJob struct {
	dispatcher QueueRebalancer
	log        zerolog.Logger
}

// NewRebalanceJob creates the queue rebalance job.
func NewRebalanceJob(dispatcher QueueRebalancer, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{dispatcher: dispatcher, log: log.With().Str("job", "queue_rebalance").Logger()}
}

func (j *RebalanceJob) Name() string { return "queue_rebalance" }

func (j *RebalanceJob) Run() error {
	rescored := j.dispatcher.RebalanceQueue()
	j.log.Debug().Int("rescored", rescored).Msg("Queue rebalanced")
	return nil
}

// SweepJob reclaims tasks held by workers whose heartbeats lapsed.
type SweepJob struct {
	dispatcher QueueRebalancer
}

// NewSweepJob creates the stale-worker sweep job.
func NewSweepJob(dispatcher QueueRebalancer) *SweepJob {
	return &SweepJob{dispatcher: dispatcher}
}

func (j *SweepJob) Name() string { return "stale_worker_sweep" }

func (j *SweepJob) Run() error {
	j.dispatcher.SweepStaleWorkers()
	return nil
}

// WeeklyReportJob generates the trailing seven-day financial report.
type WeeklyReportJob struct {
	reporter ReportGenerator
	log      zerolog.Logger
}

// NewWeeklyReportJob creates the weekly report job.
func NewWeeklyReportJob(reporter ReportGenerator, log zerolog.Logger) *WeeklyReportJob {
	return &WeeklyReportJob{reporter: reporter, log: log.With().Str("job", "weekly_report").Logger()}
}

func (j *WeeklyReportJob) Name() string { return "weekly_report" }

func (j *WeeklyReportJob) Run() error {
	report, err := j.reporter.GenerateWeeklyReport()
	if err != nil {
		return err
	}
	j.log.Info().
		Str("report_id", report.ID).
		Str("net_profit", report.NetProfit.String()).
		Msg("Weekly report generated")
	return nil
}
