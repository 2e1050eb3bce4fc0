package ingestion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/insider-alpha/form4-pipeline/internal/bundle"
	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
)

// Run ingests the given periods on a bounded worker pool. Periods are
// independent, so they run in parallel; a period's failure is recorded in
// its summary and never aborts the others. The returned error is non-nil
// only on context cancellation.
func (s *Service) Run(ctx context.Context, periods []models.Period) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:   uuid.NewString(),
		Periods: make([]models.PeriodSummary, len(periods)),
		Started: s.now(),
	}
	logger.Get().Infow("starting ingestion run",
		"run_group", summary.RunID, "periods", len(periods), "workers", s.cfg.NumPeriodWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NumPeriodWorkers)

	for i, period := range periods {
		i, period := i, period
		g.Go(func() error {
			summary.Periods[i] = s.IngestPeriod(gctx, period)
			return nil
		})
	}

	err := g.Wait()
	summary.Ended = s.now()
	if err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

// openBundle opens a period's archive, giving up after the configured
// timeout so one unreachable bundle cannot stall the pool.
func (s *Service) openBundle(ctx context.Context, period models.Period) (*bundle.Bundle, error) {
	if s.cfg.BundleTimeout <= 0 {
		return s.loader.Open(period)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.BundleTimeout)
	defer cancel()

	type result struct {
		b   *bundle.Bundle
		err error
	}
	ch := make(chan result, 1)
	go func() {
		b, err := s.loader.Open(period)
		ch <- result{b: b, err: err}
	}()

	select {
	case r := <-ch:
		return r.b, r.err
	case <-ctx.Done():
		// The open finishes on its own time; close the bundle when it does.
		go func() {
			if r := <-ch; r.b != nil {
				r.b.Close()
			}
		}()
		return nil, &models.BundleUnavailableError{
			Period: period,
			Err:    fmt.Errorf("timed out opening bundle: %w", ctx.Err()),
		}
	}
}
