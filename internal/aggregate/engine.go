// Package aggregate recomputes per-trader performance rollups from the
// canonical trade ledger.
package aggregate

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
	"github.com/insider-alpha/form4-pipeline/internal/store"
)

// Engine is the sole writer of trader performance fields. Every recompute is
// a full replace from the ledger, never an incremental update, so re-running
// it at any time is safe.
type Engine struct {
	store   store.Store
	workers int
	now     func() time.Time
}

func NewEngine(s store.Store, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{store: s, workers: workers, now: time.Now}
}

// RecomputeAll recomputes performance for every trader in the ledger.
func (e *Engine) RecomputeAll(ctx context.Context) error {
	ids, err := e.store.TraderIDs(ctx)
	if err != nil {
		return err
	}
	return e.Recompute(ctx, ids)
}

// Recompute recomputes performance for the given traders. Each trader's
// rollup touches only its own trades, so traders are processed in parallel.
func (e *Engine) Recompute(ctx context.Context, traderIDs []int64) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, id := range traderIDs {
		id := id
		g.Go(func() error {
			trades, err := e.store.TradesByTrader(ctx, id)
			if err != nil {
				return err
			}
			perf := Compute(trades, e.now())
			if err := e.store.UpdateTraderPerformance(ctx, id, perf); err != nil {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Get().Infow("recomputed trader performance", "traders", len(traderIDs))
	return nil
}

// Compute derives the full performance rollup for one trader's trades.
//
// Win rate and average returns consider buy trades only: a sale's "return"
// says nothing about the insider's entry timing. Trades without populated
// return data simply don't participate in the ratios.
func Compute(trades []models.Trade, now time.Time) models.Performance {
	p := models.Performance{
		TotalTrades:  len(trades),
		CalculatedAt: now,
	}

	var (
		wins      int
		returns30 []float64
		returns90 []float64
		returns1y []float64
	)

	for _, t := range trades {
		if t.TransactionType != models.TypeBuy {
			continue
		}

		if t.Return30d != nil {
			returns30 = append(returns30, *t.Return30d)
			if *t.Return30d > 0 {
				wins++
			}
		}
		if t.Return90d != nil {
			returns90 = append(returns90, *t.Return90d)
		}
		if t.Return1y != nil {
			returns1y = append(returns1y, *t.Return1y)
		}

		if t.CurrentPrice != nil {
			p.TotalProfitLoss += (*t.CurrentPrice - t.PricePerShare) * t.Shares
		}
	}

	if len(returns30) > 0 {
		p.WinRate = float64(wins) / float64(len(returns30)) * 100
	}
	p.AvgReturn30d = mean(returns30)
	p.AvgReturn90d = mean(returns90)
	p.AvgReturn1y = mean(returns1y)

	// Composite score: return quality, consistency, and a capped volume
	// factor that stops a single lucky trade from topping the ranking.
	tradesFactor := math.Min(float64(p.TotalTrades)/10, 1) * 10
	p.PerformanceScore = 0.4*p.AvgReturn90d + 0.3*p.WinRate + 0.3*tradesFactor

	return p
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
