package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insider-alpha/form4-pipeline/internal/logger"
	"github.com/insider-alpha/form4-pipeline/internal/models"
)

// Connect opens a pgx connection pool against the ledger database.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) IsBundleIngested(ctx context.Context, checksum string) (bool, error) {
	query := `
	SELECT run_id
	FROM ingestion_runs
	WHERE bundle_checksum = $1 AND status IN ($2, $3)
	LIMIT 1;`

	var id string
	err := s.pool.QueryRow(ctx, query, checksum, models.RunStatusDone, models.RunStatusDoneWithErrors).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error finding ingestion run by checksum: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, runID string, period models.Period, checksum string) error {
	query := `
	INSERT INTO ingestion_runs (run_id, period, bundle_checksum, status, started_at)
	VALUES ($1, $2, $3, $4, NOW());`

	_, err := s.pool.Exec(ctx, query, runID, period.String(), checksum, models.RunStatusProcessing)
	if err != nil {
		return fmt.Errorf("error inserting ingestion run: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status string, summary models.PeriodSummary) error {
	query := `
	UPDATE ingestion_runs
	SET status = $1,
		processed = $2,
		inserted = $3,
		duplicates = $4,
		linkage_misses = $5,
		validation_rejects = $6,
		dropped = $7,
		finished_at = NOW()
	WHERE run_id = $8;`

	_, err := s.pool.Exec(ctx, query, status,
		summary.Processed, summary.Inserted, summary.Duplicates,
		summary.LinkageMisses, summary.ValidationRejects, summary.Dropped, runID)
	if err != nil {
		return fmt.Errorf("error updating ingestion run %s: %w", runID, err)
	}
	return nil
}

// UpsertTrader inserts the trader or, when the case-insensitive
// (name, ticker) identity already exists, returns the existing row's id. The
// no-op DO UPDATE makes RETURNING yield the id on both paths, so two workers
// racing on the same identity both get the surviving row.
func (s *PostgresStore) UpsertTrader(ctx context.Context, t models.Trader) (int64, error) {
	query := `
	INSERT INTO traders (name, title, company_ticker, company_name, relationship_to_company, sector, low_confidence_ticker)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT ((lower(name)), company_ticker) DO UPDATE SET name = traders.name
	RETURNING trader_id;`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		t.Name, t.Title, t.Ticker, t.CompanyName, t.Relationship, t.Sector, t.LowConfidenceTicker,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("error upserting trader %q/%s: %w", t.Name, t.Ticker, err)
	}
	return id, nil
}

const insertTradeQuery = `
	INSERT INTO trades (trader_id, company_ticker, transaction_date, transaction_type, shares_traded, price_per_share, total_value, period)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (trader_id, transaction_date, shares_traded, price_per_share, transaction_type) DO NOTHING;`

func (s *PostgresStore) InsertTrades(ctx context.Context, trades []models.Trade) (int, int, error) {
	inserted, duplicates, err := s.insertBatch(ctx, trades)
	if err == nil {
		return inserted, duplicates, nil
	}

	// A uniqueness violation here means another worker won a race this
	// micro-batch's ON CONFLICT clause could not absorb. One retry turns the
	// losers into counted duplicates.
	if isUniqueViolation(err) {
		logger.Get().Warnw("retrying trade batch after uniqueness conflict", "batch_size", len(trades))
		return s.insertBatch(ctx, trades)
	}
	return 0, 0, err
}

func (s *PostgresStore) insertBatch(ctx context.Context, trades []models.Trade) (int, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeQuery,
			t.TraderID, t.Ticker, t.TransactionDate, t.TransactionType,
			t.Shares, t.PricePerShare, t.TotalValue, t.Period)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range trades {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, 0, fmt.Errorf("error inserting trade batch: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, 0, fmt.Errorf("error closing trade batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("error committing trade batch: %w", err)
	}
	return inserted, len(trades) - inserted, nil
}

func (s *PostgresStore) TraderIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT trader_id FROM traders ORDER BY trader_id;`)
	if err != nil {
		return nil, fmt.Errorf("error querying trader ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning trader id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) TradesByTrader(ctx context.Context, traderID int64) ([]models.Trade, error) {
	query := `
	SELECT trade_id, trader_id, company_ticker, transaction_date, transaction_type,
	       shares_traded, price_per_share, total_value, period,
	       current_price, return_30d, return_90d, return_1y
	FROM trades
	WHERE trader_id = $1
	ORDER BY transaction_date, trade_id;`

	rows, err := s.pool.Query(ctx, query, traderID)
	if err != nil {
		return nil, fmt.Errorf("error querying trades for trader %d: %w", traderID, err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		err := rows.Scan(&t.ID, &t.TraderID, &t.Ticker, &t.TransactionDate, &t.TransactionType,
			&t.Shares, &t.PricePerShare, &t.TotalValue, &t.Period,
			&t.CurrentPrice, &t.Return30d, &t.Return90d, &t.Return1y)
		if err != nil {
			return nil, fmt.Errorf("error scanning trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) UpdateTraderPerformance(ctx context.Context, traderID int64, p models.Performance) error {
	query := `
	UPDATE traders
	SET total_trades = $1,
		win_rate = $2,
		avg_return_30d = $3,
		avg_return_90d = $4,
		avg_return_1y = $5,
		total_profit_loss = $6,
		performance_score = $7,
		last_calculated = $8
	WHERE trader_id = $9;`

	_, err := s.pool.Exec(ctx, query,
		p.TotalTrades, p.WinRate, p.AvgReturn30d, p.AvgReturn90d, p.AvgReturn1y,
		p.TotalProfitLoss, p.PerformanceScore, p.CalculatedAt, traderID)
	if err != nil {
		return fmt.Errorf("error updating performance for trader %d: %w", traderID, err)
	}
	return nil
}

func (s *PostgresStore) TradesMissingPrice(ctx context.Context, limit int) ([]models.Trade, error) {
	query := `
	SELECT trade_id, trader_id, company_ticker, transaction_date, transaction_type,
	       shares_traded, price_per_share, total_value, period,
	       current_price, return_30d, return_90d, return_1y
	FROM trades
	WHERE current_price IS NULL
	ORDER BY trade_id
	LIMIT $1;`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying trades missing prices: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		err := rows.Scan(&t.ID, &t.TraderID, &t.Ticker, &t.TransactionDate, &t.TransactionType,
			&t.Shares, &t.PricePerShare, &t.TotalValue, &t.Period,
			&t.CurrentPrice, &t.Return30d, &t.Return90d, &t.Return1y)
		if err != nil {
			return nil, fmt.Errorf("error scanning trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) UpdateTradeReturns(ctx context.Context, tradeID int64, currentPrice float64, r30, r90, r1y *float64) error {
	query := `
	UPDATE trades
	SET current_price = $1,
		return_30d = $2,
		return_90d = $3,
		return_1y = $4
	WHERE trade_id = $5;`

	_, err := s.pool.Exec(ctx, query, currentPrice, r30, r90, r1y, tradeID)
	if err != nil {
		return fmt.Errorf("error updating returns for trade %d: %w", tradeID, err)
	}
	return nil
}
