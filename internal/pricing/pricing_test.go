package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/insider-alpha/form4-pipeline/internal/models"
)

// MockStore implements the subset of store.Store the enricher touches.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) IsBundleIngested(ctx context.Context, checksum string) (bool, error) {
	args := m.Called(ctx, checksum)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) StartRun(ctx context.Context, runID string, period models.Period, checksum string) error {
	args := m.Called(ctx, runID, period, checksum)
	return args.Error(0)
}

func (m *MockStore) FinishRun(ctx context.Context, runID string, status string, summary models.PeriodSummary) error {
	args := m.Called(ctx, runID, status, summary)
	return args.Error(0)
}

func (m *MockStore) UpsertTrader(ctx context.Context, t models.Trader) (int64, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) InsertTrades(ctx context.Context, trades []models.Trade) (int, int, error) {
	args := m.Called(ctx, trades)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockStore) TraderIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockStore) TradesByTrader(ctx context.Context, traderID int64) ([]models.Trade, error) {
	args := m.Called(ctx, traderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Trade), args.Error(1)
}

func (m *MockStore) UpdateTraderPerformance(ctx context.Context, traderID int64, p models.Performance) error {
	args := m.Called(ctx, traderID, p)
	return args.Error(0)
}

func (m *MockStore) TradesMissingPrice(ctx context.Context, limit int) ([]models.Trade, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Trade), args.Error(1)
}

func (m *MockStore) UpdateTradeReturns(ctx context.Context, tradeID int64, currentPrice float64, r30, r90, r1y *float64) error {
	args := m.Called(ctx, tradeID, currentPrice, r30, r90, r1y)
	return args.Error(0)
}

// MockSource is a mock price source.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) Price(ctx context.Context, ticker string, date time.Time) (float64, error) {
	args := m.Called(ctx, ticker, date)
	return args.Get(0).(float64), args.Error(1)
}

func TestReturnsHorizonGating(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	trade := models.Trade{PricePerShare: 10}

	tests := []struct {
		name    string
		ageDays int
		want30  bool
		want90  bool
		want1y  bool
	}{
		{"too young for any horizon", 10, false, false, false},
		{"past 30 days", 45, true, false, false},
		{"past 90 days", 120, true, true, false},
		{"past one year", 400, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade.TransactionDate = now.AddDate(0, 0, -tt.ageDays)
			r30, r90, r1y := Returns(trade, 12, now)

			assert.Equal(t, tt.want30, r30 != nil)
			assert.Equal(t, tt.want90, r90 != nil)
			assert.Equal(t, tt.want1y, r1y != nil)
			if r30 != nil {
				assert.InDelta(t, 20.0, *r30, 1e-9)
			}
		})
	}
}

func TestReturnsNegative(t *testing.T) {
	now := time.Now()
	trade := models.Trade{PricePerShare: 20, TransactionDate: now.AddDate(-1, -1, 0)}

	r30, _, r1y := Returns(trade, 15, now)
	require.NotNil(t, r30)
	require.NotNil(t, r1y)
	assert.InDelta(t, -25.0, *r30, 1e-9)
}

func TestReturnsZeroEntryPrice(t *testing.T) {
	r30, r90, r1y := Returns(models.Trade{}, 12, time.Now())
	assert.Nil(t, r30)
	assert.Nil(t, r90)
	assert.Nil(t, r1y)
}

func TestEnricherRun(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{ID: 1, Ticker: "ACME", PricePerShare: 10, TransactionDate: now.AddDate(0, 0, -60)},
		{ID: 2, Ticker: "BETA", PricePerShare: 20, TransactionDate: now.AddDate(0, 0, -60)},
	}

	st := new(MockStore)
	st.On("TradesMissingPrice", mock.Anything, 50).Return(trades, nil)
	st.On("UpdateTradeReturns", mock.Anything, int64(1), 12.0, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	src := new(MockSource)
	src.On("Price", mock.Anything, "ACME", now).Return(12.0, nil)
	// A failed lookup skips the trade without failing the run.
	src.On("Price", mock.Anything, "BETA", now).Return(0.0, errors.New("symbol not found"))

	e := NewEnricher(st, src)
	e.now = func() time.Time { return now }

	updated, err := e.Run(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	st.AssertNumberOfCalls(t, "UpdateTradeReturns", 1)
}

func TestEnricherRunStoreFailure(t *testing.T) {
	st := new(MockStore)
	st.On("TradesMissingPrice", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	e := NewEnricher(st, new(MockSource))
	_, err := e.Run(context.Background(), 10)
	assert.Error(t, err)
}
