// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration. Fraud thresholds and distribution
// knobs are configuration, not literals baked into the components.
type Config struct {
	DataDir         string // base directory for the store and queue snapshots
	StorePath       string // ledger database file
	LogLevel        string
	DefaultCurrency string

	// Distribution core
	QueueRebalanceInterval time.Duration // full queue re-score cadence
	AssignmentTimeout      time.Duration // worker acknowledgement window
	HeartbeatStaleness     time.Duration // heartbeat gap => worker unavailable
	CompatibilityFloor     float64       // minimum composite to commit an assignment
	QueueHighWater         int           // queue depth beyond which submit throttles
	WorkerCapacityDefault  int
	MaxTaskFailures        int // terminal failure after this many attempts
	WorkerErrorRateLimit   float64
	ShutdownTimeout        time.Duration

	// Ledger core
	MaxSingleTxn       decimal.Decimal // fraud: single-transaction cap
	MaxDailyTxn        decimal.Decimal // fraud: per-account daily cap
	MinTxnAmount       decimal.Decimal
	MaxTxnAmount       decimal.Decimal
	RapidSuccessionMax int  // validated txns within 5 minutes before flagging
	TransferAutoRevert bool // compensate a failed credit leg automatically
}

// Load reads configuration from environment variables (.env supported).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("AGENCY_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		StorePath:       getEnv("AGENCY_STORE_PATH", filepath.Join(absDataDir, "ledger.db")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DefaultCurrency: getEnv("AGENCY_DEFAULT_CURRENCY", "USD"),

		QueueRebalanceInterval: getEnvAsDuration("AGENCY_QUEUE_REBALANCE_INTERVAL", 300*time.Second),
		AssignmentTimeout:      getEnvAsDuration("AGENCY_ASSIGNMENT_TIMEOUT", 60*time.Second),
		HeartbeatStaleness:     getEnvAsDuration("AGENCY_HEARTBEAT_STALENESS", 600*time.Second),
		CompatibilityFloor:     getEnvAsFloat("AGENCY_COMPATIBILITY_FLOOR", 0.35),
		QueueHighWater:         getEnvAsInt("AGENCY_QUEUE_HIGH_WATER", 1000),
		WorkerCapacityDefault:  getEnvAsInt("AGENCY_WORKER_CAPACITY_DEFAULT", 3),
		MaxTaskFailures:        getEnvAsInt("AGENCY_MAX_TASK_FAILURES", 3),
		WorkerErrorRateLimit:   getEnvAsFloat("AGENCY_WORKER_ERROR_RATE_LIMIT", 0.5),
		ShutdownTimeout:        getEnvAsDuration("AGENCY_SHUTDOWN_TIMEOUT", 30*time.Second),

		MaxSingleTxn:       getEnvAsDecimal("AGENCY_MAX_SINGLE_TXN", "10000"),
		MaxDailyTxn:        getEnvAsDecimal("AGENCY_MAX_DAILY_TXN", "25000"),
		MinTxnAmount:       getEnvAsDecimal("AGENCY_MIN_TXN_AMOUNT", "0.01"),
		MaxTxnAmount:       getEnvAsDecimal("AGENCY_MAX_TXN_AMOUNT", "100000"),
		RapidSuccessionMax: getEnvAsInt("AGENCY_RAPID_SUCCESSION_MAX", 3),
		TransferAutoRevert: getEnvAsBool("AGENCY_TRANSFER_AUTO_REVERT", true),
	}

	if cfg.CompatibilityFloor < 0 || cfg.CompatibilityFloor > 1 {
		return nil, fmt.Errorf("compatibility floor must be in [0,1], got %f", cfg.CompatibilityFloor)
	}
	if cfg.MinTxnAmount.GreaterThan(cfg.MaxTxnAmount) {
		return nil, fmt.Errorf("minimum transaction amount exceeds maximum")
	}

	return cfg, nil
}

// Default returns a configuration with all defaults, without touching the
// environment. Used by tests.
func Default() *Config {
	return &Config{
		DataDir:                ".",
		StorePath:              "file:agency?mode=memory&cache=shared",
		LogLevel:               "info",
		DefaultCurrency:        "USD",
		QueueRebalanceInterval: 300 * time.Second,
		AssignmentTimeout:      60 * time.Second,
		HeartbeatStaleness:     600 * time.Second,
		CompatibilityFloor:     0.35,
		QueueHighWater:         1000,
		WorkerCapacityDefault:  3,
		MaxTaskFailures:        3,
		WorkerErrorRateLimit:   0.5,
		ShutdownTimeout:        30 * time.Second,
		MaxSingleTxn:           decimal.RequireFromString("10000"),
		MaxDailyTxn:            decimal.RequireFromString("25000"),
		MinTxnAmount:           decimal.RequireFromString("0.01"),
		MaxTxnAmount:           decimal.RequireFromString("100000"),
		RapidSuccessionMax:     3,
		TransferAutoRevert:     true,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvAsDuration accepts either a Go duration string ("5m") or a plain
// number of seconds ("300").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsDecimal(key, fallback string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}
