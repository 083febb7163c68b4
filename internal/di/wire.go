// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/database"
	"github.com/dkoutsos/agency/internal/dispatch"
	"github.com/dkoutsos/agency/internal/events"
	"github.com/dkoutsos/agency/internal/ledger"
	"github.com/dkoutsos/agency/internal/match"
	"github.com/dkoutsos/agency/internal/priority"
	"github.com/dkoutsos/agency/internal/queue"
	"github.com/dkoutsos/agency/internal/scheduler"
	"github.com/dkoutsos/agency/internal/workers"
)

// Container holds every wired component.
type Container struct {
	Config *config.Config

	LedgerDB     *database.DB
	Accounts     *ledger.AccountRegistry
	Transactions *ledger.TransactionRepository
	Ledger       *ledger.Processor
	Reporter     *ledger.Reporter

	Events     *events.Manager
	Engine     *priority.Engine
	Queue      *queue.Queue
	Registry   *workers.Registry
	Matcher    *match.Matcher
	Dispatcher *dispatch.Dispatcher
	Scheduler  *scheduler.Scheduler
}

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open and migrate the store
// 2. Bootstrap the default accounts and build the ledger pipeline
// 3. Build the distribution core around it
// 4. Register the recurring jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.StorePath,
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	accounts, err := ledger.NewAccountRegistry(db, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	if _, _, err := accounts.Bootstrap(cfg.DefaultCurrency); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap accounts: %w", err)
	}

	ev := events.NewManager(log)
	txns := ledger.NewTransactionRepository(db, log)
	fraud := ledger.NewFraudScreen(cfg, txns, log)
	ledgerProc := ledger.NewProcessor(cfg, db, accounts, txns, fraud, log)
	reporter := ledger.NewReporter(db, txns, ev, log)

	engine := priority.NewEngine(log)
	taskQueue := queue.New(engine, ev, cfg.QueueHighWater, log)
	registry := workers.NewRegistry(cfg, log)
	matcher := match.NewMatcher(log)
	dispatcher := dispatch.New(cfg, taskQueue, registry, engine, matcher, ledgerProc, ev, log)

	container := &Container{
		Config:       cfg,
		LedgerDB:     db,
		Accounts:     accounts,
		Transactions: txns,
		Ledger:       ledgerProc,
		Reporter:     reporter,
		Events:       ev,
		Engine:       engine,
		Queue:        taskQueue,
		Registry:     registry,
		Matcher:      matcher,
		Dispatcher:   dispatcher,
		Scheduler:    scheduler.New(log),
	}

	if err := RegisterJobs(container, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

// Close releases the container's resources.
func (c *Container) Close() {
	if c.LedgerDB != nil {
		_ = c.LedgerDB.Close()
	}
}
