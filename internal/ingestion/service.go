// Package ingestion orchestrates the per-period pipeline: bundle loading,
// record linkage, ticker resolution, normalization, and idempotent
// persistence.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insider-alpha/form4-pipeline/internal/bundle"
	"github.com/insider-alpha/form4-pipeline/internal/linker"
	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
	"github.com/insider-alpha/form4-pipeline/internal/normalize"
	"github.com/insider-alpha/form4-pipeline/internal/sector"
	"github.com/insider-alpha/form4-pipeline/internal/store"
	"github.com/insider-alpha/form4-pipeline/internal/ticker"
)

type Config struct {
	NumPeriodWorkers int
	DBBatchSize      int
	BundleTimeout    time.Duration

	// RecordCap limits how many transactions are persisted per period;
	// 0 means unlimited.
	RecordCap int
}

type Service struct {
	cfg        Config
	store      store.Store
	loader     *bundle.Loader
	classifier sector.Classifier
	now        func() time.Time
}

func NewService(cfg Config, s store.Store, l *bundle.Loader) *Service {
	if cfg.NumPeriodWorkers < 1 {
		cfg.NumPeriodWorkers = 1
	}
	if cfg.DBBatchSize < 1 {
		cfg.DBBatchSize = 500
	}
	return &Service{
		cfg:        cfg,
		store:      s,
		loader:     l,
		classifier: sector.None{},
		now:        time.Now,
	}
}

// WithClassifier installs an optional industry classifier. The ledger never
// depends on its output.
func (s *Service) WithClassifier(c sector.Classifier) *Service {
	s.classifier = c
	return s
}

// runContext is the explicit per-period ingestion state threaded through the
// pipeline stages: the store handle lives on the service, everything
// run-scoped lives here and dies with the run.
type runContext struct {
	runID  string
	period models.Period

	normalizer *normalize.Normalizer

	// traderIDs caches identity-key → persistent id so each trader is
	// upserted once per period.
	traderIDs map[string]int64

	batch        []models.Trade
	batchFailure bool

	summary models.PeriodSummary
}

func identityKey(name, symbol string) string {
	return strings.ToLower(name) + "\x00" + symbol
}

// IngestPeriod runs the full pipeline for one period. All failures are
// captured in the returned summary; only storage connectivity or bundle
// level problems mark the period failed, and nothing aborts the run.
func (s *Service) IngestPeriod(ctx context.Context, period models.Period) models.PeriodSummary {
	log := logger.Get().With("period", period.String())

	b, err := s.openBundle(ctx, period)
	if err != nil {
		log.Warnw("skipping period", "error", err)
		return models.PeriodSummary{Period: period, Failed: true, FailureReason: err.Error()}
	}
	defer b.Close()

	ingested, err := s.store.IsBundleIngested(ctx, b.Checksum)
	if err != nil {
		return models.PeriodSummary{Period: period, Failed: true, FailureReason: err.Error()}
	}
	if ingested {
		log.Infow("bundle already ingested, skipping", "checksum", b.Checksum)
		return models.PeriodSummary{Period: period, AlreadyIngested: true}
	}

	rc := &runContext{
		runID:      uuid.NewString(),
		period:     period,
		normalizer: normalize.New(s.now()),
		traderIDs:  make(map[string]int64),
		batch:      make([]models.Trade, 0, s.cfg.DBBatchSize),
		summary:    models.PeriodSummary{Period: period},
	}

	if err := s.store.StartRun(ctx, rc.runID, period, b.Checksum); err != nil {
		return models.PeriodSummary{Period: period, Failed: true, FailureReason: err.Error()}
	}

	if err := s.ingestBundle(ctx, rc, b); err != nil {
		rc.summary.Failed = true
		rc.summary.FailureReason = err.Error()
		if ferr := s.store.FinishRun(ctx, rc.runID, models.RunStatusFailed, rc.summary); ferr != nil {
			log.Errorw("failed to record run failure", "error", ferr)
		}
		return rc.summary
	}

	status := models.RunStatusDone
	if rc.batchFailure {
		status = models.RunStatusDoneWithErrors
	}
	if err := s.store.FinishRun(ctx, rc.runID, status, rc.summary); err != nil {
		log.Errorw("failed to record run completion", "error", err)
	}

	log.Infow("period ingested",
		"processed", rc.summary.Processed,
		"inserted", rc.summary.Inserted,
		"duplicates", rc.summary.Duplicates,
		"linkage_misses", rc.summary.LinkageMisses,
		"validation_rejects", rc.summary.ValidationRejects,
		"dropped", rc.summary.Dropped)
	return rc.summary
}

func (s *Service) ingestBundle(ctx context.Context, rc *runContext, b *bundle.Bundle) error {
	subs, err := b.Submissions()
	if err != nil {
		return err
	}
	owners, err := b.Owners()
	if err != nil {
		subs.Close()
		return err
	}

	idx, err := linker.Build(subs, owners)
	subs.Close()
	owners.Close()
	if err != nil {
		return err
	}
	logger.Get().Debugw("built linkage index", "period", rc.period.String(), "filings", idx.Filings())

	trans, err := b.Transactions()
	if err != nil {
		return err
	}
	err = s.processExtract(ctx, rc, idx, trans, false)
	trans.Close()
	if err != nil {
		return err
	}

	// Derivative transactions are optional; older bundles don't carry them.
	deriv, err := b.Derivatives()
	if err != nil {
		return err
	}
	if deriv != nil {
		err = s.processExtract(ctx, rc, idx, deriv, true)
		deriv.Close()
		if err != nil {
			return err
		}
	}

	return s.flush(ctx, rc)
}

func (s *Service) processExtract(ctx context.Context, rc *runContext, idx *linker.Linker, ext *bundle.Extract, derivative bool) error {
	for {
		if s.cfg.RecordCap > 0 && rc.summary.Processed+len(rc.batch) >= s.cfg.RecordCap {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := ext.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			rc.summary.ValidationRejects++
			continue
		}

		raw := models.RawTransaction{
			AccessionNumber: ext.Field(row, bundle.ColAccession),
			RawDate:         ext.Field(row, bundle.ColTransDate),
			RawCode:         ext.Field(row, bundle.ColTransCode),
			RawShares:       ext.Field(row, bundle.ColTransShares),
			RawPrice:        ext.Field(row, bundle.ColTransPrice),
			RawSharesOwned:  ext.Field(row, bundle.ColSharesOwned),
			SecurityTitle:   ext.Field(row, bundle.ColSecurityTitle),
			Derivative:      derivative,
		}

		if err := s.processTransaction(ctx, rc, idx, raw); err != nil {
			return err
		}
	}
}

// processTransaction runs one raw transaction through linkage, ticker
// resolution, normalization and the two-phase trader/trade persist. Only
// storage failures return an error.
func (s *Service) processTransaction(ctx context.Context, rc *runContext, idx *linker.Linker, raw models.RawTransaction) error {
	fr, ok := idx.Link(raw)
	if !ok {
		rc.summary.LinkageMisses++
		return nil
	}

	sym, ok := ticker.Resolve(fr.Issuer.RawSymbol, fr.Owner.OwnerName, fr.Issuer.IssuerName)
	if !ok {
		rc.summary.ValidationRejects++
		return nil
	}

	res, err := rc.normalizer.Normalize(fr, sym, rc.period)
	if err != nil {
		rc.summary.ValidationRejects++
		return nil
	}

	// Phase one: the trade needs a trader id before it can reference one.
	// The upsert is atomic in the store; the cache only saves round trips.
	key := identityKey(res.Trader.Name, res.Trader.Ticker)
	traderID, cached := rc.traderIDs[key]
	if !cached {
		if sec, ok := s.classifier.Classify(res.Trader.CompanyName); ok {
			res.Trader.Sector = sec
		}
		traderID, err = s.store.UpsertTrader(ctx, res.Trader)
		if err != nil {
			return fmt.Errorf("failed to upsert trader %q: %w", res.Trader.Name, err)
		}
		rc.traderIDs[key] = traderID
	}

	// Phase two: queue the trade for the next micro-batch commit.
	res.Trade.TraderID = traderID
	rc.batch = append(rc.batch, res.Trade)
	if len(rc.batch) >= s.cfg.DBBatchSize {
		return s.flush(ctx, rc)
	}
	return nil
}

// flush commits the pending micro-batch. A failed batch is dropped and
// counted against the run status; it never takes the period down.
func (s *Service) flush(ctx context.Context, rc *runContext) error {
	if len(rc.batch) == 0 {
		return nil
	}

	inserted, duplicates, err := s.store.InsertTrades(ctx, rc.batch)
	if err != nil {
		logger.Get().Errorw("trade batch failed, dropping batch",
			"period", rc.period.String(), "batch_size", len(rc.batch), "error", err)
		rc.batchFailure = true
		rc.summary.Dropped += len(rc.batch)
		rc.batch = rc.batch[:0]
		return nil
	}

	rc.summary.Processed += len(rc.batch)
	rc.summary.Inserted += inserted
	rc.summary.Duplicates += duplicates
	rc.batch = rc.batch[:0]
	return nil
}
