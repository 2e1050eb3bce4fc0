package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/insider-alpha/form4-pipeline/internal/aggregate"
	"github.com/insider-alpha/form4-pipeline/internal/bundle"
	"github.com/insider-alpha/form4-pipeline/internal/config"
	"github.com/insider-alpha/form4-pipeline/internal/ingestion"
	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
	"github.com/insider-alpha/form4-pipeline/internal/store"
)

type options struct {
	start     string
	end       string
	dataDir   string
	recordCap int
	aggregate bool
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	var opts options
	flag.StringVar(&opts.start, "start", "", "first period to ingest, e.g. 2020q1")
	flag.StringVar(&opts.end, "end", "", "last period to ingest (defaults to start)")
	flag.StringVar(&opts.dataDir, "data", "sec_data", "directory holding <period>_form345.zip bundles")
	flag.IntVar(&opts.recordCap, "limit", 0, "max transactions persisted per period (0 = unlimited)")
	flag.BoolVar(&opts.aggregate, "aggregate", true, "recompute trader performance after ingestion")
	flag.Parse()

	// A setup failure is the only thing that exits non-zero; skipped periods
	// are reported in the summary and still count as a completed run.
	if err := run(opts); err != nil {
		logger.Get().Errorf("run aborted: %v", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	startTime := time.Now()

	periods, err := parsePeriodRange(opts.start, opts.end)
	if err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	pg := store.NewPostgresStore(pool)
	svc := ingestion.NewService(ingestion.Config{
		NumPeriodWorkers: cfg.NumPeriodWorkers,
		DBBatchSize:      cfg.DBBatchSize,
		BundleTimeout:    cfg.BundleTimeout,
		RecordCap:        opts.recordCap,
	}, pg, bundle.NewLoader(opts.dataDir))

	summary, err := svc.Run(ctx, periods)
	if err != nil {
		return err
	}

	if opts.aggregate {
		engine := aggregate.NewEngine(pg, cfg.NumAggregationWorkers)
		if err := engine.RecomputeAll(ctx); err != nil {
			logger.Get().Errorw("aggregation failed", "error", err)
		}
	}

	printSummary(summary, time.Since(startTime))
	return nil
}

func parsePeriodRange(start, end string) ([]models.Period, error) {
	if start == "" {
		return nil, fmt.Errorf("-start is required")
	}
	from, err := models.ParsePeriod(start)
	if err != nil {
		return nil, err
	}
	to := from
	if end != "" {
		if to, err = models.ParsePeriod(end); err != nil {
			return nil, err
		}
	}
	return models.PeriodRange(from, to)
}

func printSummary(summary models.RunSummary, elapsed time.Duration) {
	fmt.Printf("run %s finished in %s\n", summary.RunID, elapsed.Round(time.Millisecond))
	for _, ps := range summary.Periods {
		fmt.Printf("  %s\n", ps)
	}
	if failed := summary.FailedPeriods(); len(failed) > 0 {
		fmt.Printf("  %d period(s) skipped due to failures: %v\n", len(failed), failed)
	}
}
