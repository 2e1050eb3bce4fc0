package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string

	// Number of periods ingested concurrently. Within one period, filings
	// are processed sequentially in source order.
	NumPeriodWorkers int

	// Trades committed per transaction; a mid-batch failure rolls back only
	// the batch.
	DBBatchSize int

	// Workers used when recomputing trader performance.
	NumAggregationWorkers int

	// A bundle that cannot be opened within this window marks its period
	// failed; the run continues.
	BundleTimeout time.Duration

	Environment string
}

func New() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:           databaseURL,
		NumPeriodWorkers:      4,
		DBBatchSize:           500,
		NumAggregationWorkers: 8,
		BundleTimeout:         2 * time.Minute,
		Environment:           os.Getenv("ENV"),
	}

	var err error
	cfg.NumPeriodWorkers, err = getEnvAsInt("NUM_PERIOD_WORKERS", cfg.NumPeriodWorkers)
	if err != nil {
		return nil, err
	}

	cfg.DBBatchSize, err = getEnvAsInt("DB_BATCH_SIZE", cfg.DBBatchSize)
	if err != nil {
		return nil, err
	}

	cfg.NumAggregationWorkers, err = getEnvAsInt("NUM_AGGREGATION_WORKERS", cfg.NumAggregationWorkers)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("BUNDLE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for BUNDLE_TIMEOUT: %q", v)
		}
		cfg.BundleTimeout = d
	}

	if cfg.NumPeriodWorkers < 1 || cfg.DBBatchSize < 1 || cfg.NumAggregationWorkers < 1 {
		return nil, fmt.Errorf("worker counts and batch size must be positive")
	}

	return cfg, nil
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}
