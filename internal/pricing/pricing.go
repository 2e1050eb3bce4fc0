// Package pricing back-fills current prices and return-at-horizon fields on
// ledger trades from a real price source.
package pricing

import (
	"context"
	"time"

	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
	"github.com/insider-alpha/form4-pipeline/internal/store"
)

// Source looks up a security's price. It is the only legitimate origin of
// the ledger's current-price and return fields; the pipeline never
// synthesizes price movement.
type Source interface {
	Price(ctx context.Context, ticker string, date time.Time) (float64, error)
}

// Enricher walks trades missing a current price and fills in price and
// return fields. It may be re-run at any time; aggregation picks up the new
// data on its next recompute.
type Enricher struct {
	store  store.Store
	source Source
	now    func() time.Time
}

func NewEnricher(s store.Store, src Source) *Enricher {
	return &Enricher{store: s, source: src, now: time.Now}
}

// Run enriches up to limit trades and returns how many were updated. Lookup
// failures skip the trade; a later run retries it.
func (e *Enricher) Run(ctx context.Context, limit int) (int, error) {
	trades, err := e.store.TradesMissingPrice(ctx, limit)
	if err != nil {
		return 0, err
	}

	now := e.now()
	updated := 0
	for _, t := range trades {
		price, err := e.source.Price(ctx, t.Ticker, now)
		if err != nil {
			logger.Get().Debugw("price lookup failed", "ticker", t.Ticker, "trade_id", t.ID, "error", err)
			continue
		}

		r30, r90, r1y := Returns(t, price, now)
		if err := e.store.UpdateTradeReturns(ctx, t.ID, price, r30, r90, r1y); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// Returns computes percentage returns for the horizons the trade's age has
// reached. A horizon the trade has not aged into yet stays nil.
func Returns(t models.Trade, currentPrice float64, now time.Time) (r30, r90, r1y *float64) {
	if t.PricePerShare <= 0 {
		return nil, nil, nil
	}
	pct := (currentPrice - t.PricePerShare) / t.PricePerShare * 100
	age := now.Sub(t.TransactionDate)

	if age >= 30*24*time.Hour {
		r30 = &pct
	}
	if age >= 90*24*time.Hour {
		r90 = &pct
	}
	if age >= 365*24*time.Hour {
		r1y = &pct
	}
	return r30, r90, r1y
}
