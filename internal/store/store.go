// Package store persists the canonical trader and trade ledger.
package store

import (
	"context"

	"github.com/insider-alpha/form4-pipeline/internal/models"
)

// Store is the canonical ledger. Trader creation and trade insertion are
// upserts under uniqueness constraints so that concurrent ingestion workers
// racing on the same identity converge to one row.
type Store interface {
	// Run ledger.
	IsBundleIngested(ctx context.Context, checksum string) (bool, error)
	StartRun(ctx context.Context, runID string, period models.Period, checksum string) error
	FinishRun(ctx context.Context, runID string, status string, summary models.PeriodSummary) error

	// UpsertTrader resolves a trader by its case-insensitive (name, ticker)
	// identity, creating it if absent, and returns the persistent id. This is
	// one atomic statement, not a read-then-write.
	UpsertTrader(ctx context.Context, t models.Trader) (int64, error)

	// InsertTrades inserts a micro-batch in one transaction. Rows whose
	// dedup key already exists are silently skipped and reported in the
	// duplicates count.
	InsertTrades(ctx context.Context, trades []models.Trade) (inserted, duplicates int, err error)

	// Aggregation.
	TraderIDs(ctx context.Context) ([]int64, error)
	TradesByTrader(ctx context.Context, traderID int64) ([]models.Trade, error)
	UpdateTraderPerformance(ctx context.Context, traderID int64, p models.Performance) error

	// Return enrichment.
	TradesMissingPrice(ctx context.Context, limit int) ([]models.Trade, error)
	UpdateTradeReturns(ctx context.Context, tradeID int64, currentPrice float64, r30, r90, r1y *float64) error
}
