// Package main is the entry point for the agency platform: an autonomous
// back-office that distributes submitted tasks across registered workers and
// keeps the double-entry ledger of the revenue and costs their work produces.
//
// Startup sequence:
// 1. Load configuration from environment variables (.env supported)
// 2. Initialize structured logging
// 3. Wire all dependencies (store, ledger pipeline, distribution core, jobs)
// 4. Register the worker pool and start its heartbeat loop
// 5. Start the dispatcher (restoring any queue snapshot) and the scheduler
// 6. Wait for a shutdown signal and drain gracefully
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkoutsos/agency/internal/config"
	"github.com/dkoutsos/agency/internal/di"
	"github.com/dkoutsos/agency/internal/dispatch"
	"github.com/dkoutsos/agency/pkg/logger"
)

// simulatedPool is the default in-process worker pool. Real deployments
// register plug-ins speaking to actual executors instead.
var simulatedPool = []struct {
	id          string
	workerType  string
	proficiency map[string]float64
}{
	{"worker-content-1", "content", map[string]float64{
		"content_creation": 0.9, "writing": 0.9, "creativity": 0.8, "marketing": 0.6,
	}},
	{"worker-analyst-1", "analysis", map[string]float64{
		"data_analysis": 0.9, "statistics": 0.85, "visualization": 0.8, "research": 0.7,
	}},
	{"worker-engineer-1", "engineering", map[string]float64{
		"programming": 0.9, "system_design": 0.85, "testing": 0.8, "debugging": 0.8,
	}},
	{"worker-support-1", "support", map[string]float64{
		"communication": 0.9, "problem_solving": 0.8, "empathy": 0.85,
	}},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting agency platform")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	workerIDs := make([]string, 0, len(simulatedPool))
	for _, spec := range simulatedPool {
		worker := dispatch.NewSimulatedWorker(spec.id, spec.workerType, spec.proficiency, 2*time.Second)
		container.Registry.Register(worker)
		workerIDs = append(workerIDs, spec.id)
	}
	log.Info().Int("workers", len(workerIDs)).Msg("Simulated worker pool registered")

	// In-process workers cannot miss heartbeats on their own; publish on
	// their behalf at half the staleness window.
	heartbeatStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.HeartbeatStaleness / 2)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatStop:
				return
			case now := <-ticker.C:
				for _, id := range workerIDs {
					container.Registry.Heartbeat(id, now.UTC())
				}
			}
		}
	}()

	container.Dispatcher.Start()
	container.Scheduler.Start()

	log.Info().Msg("Agency platform started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	close(heartbeatStop)
	container.Scheduler.Stop()
	container.Dispatcher.Stop()

	log.Info().Msg("Shutdown complete")
}
