package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoutsos/agency/internal/domain"
)

type fakeDispatcher struct {
	rebalances int
	sweeps     int
}

func (f *fakeDispatcher) RebalanceQueue() int {
	f.rebalances++
	return 5
}

func (f *fakeDispatcher) SweepStaleWorkers() { f.sweeps++ }

type fakeReporter struct {
	report *domain.Report
	err    error
}

func (f *fakeReporter) GenerateWeeklyReport() (*domain.Report, error) {
	return f.report, f.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := NewSweepJob(&fakeDispatcher{})

	assert.NoError(t, s.AddJob("@every 1m", job))
	assert.Error(t, s.AddJob("not a schedule", job))
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	dispatcher := &fakeDispatcher{}

	require.NoError(t, s.RunNow(NewRebalanceJob(dispatcher, zerolog.Nop())))
	require.NoError(t, s.RunNow(NewSweepJob(dispatcher)))

	assert.Equal(t, 1, dispatcher.rebalances)
	assert.Equal(t, 1, dispatcher.sweeps)
}

func TestWeeklyReportJob(t *testing.T) {
	t.Run("passes through the report", func(t *testing.T) {
		job := NewWeeklyReportJob(&fakeReporter{report: &domain.Report{ID: "r1"}}, zerolog.Nop())
		assert.NoError(t, job.Run())
	})

	t.Run("surfaces generation errors", func(t *testing.T) {
		job := NewWeeklyReportJob(&fakeReporter{err: errors.New("store unavailable")}, zerolog.Nop())
		assert.Error(t, job.Run())
	})
}
