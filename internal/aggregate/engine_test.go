package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/insider-alpha/form4-pipeline/internal/models"
)

// MockStore implements the subset of store.Store the engine touches.
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

func f(v float64) *float64 { return &v }

func TestComputeWinRateAndProfitLoss(t *testing.T) {
	// Two buys with populated 30d returns, one positive and one negative:
	// win rate 50%, P/L = (12-10)*100 + (18-20)*50 = 100.
	trades := []models.Trade{
		{
			TransactionType: models.TypeBuy,
			Shares:          100,
			PricePerShare:   10,
			CurrentPrice:    f(12),
			Return30d:       f(20),
		},
		{
			TransactionType: models.TypeBuy,
			Shares:          50,
			PricePerShare:   20,
			CurrentPrice:    f(18),
			Return30d:       f(-10),
		},
	}

	p := Compute(trades, time.Now())
	assert.Equal(t, 2, p.TotalTrades)
	assert.Equal(t, 50.0, p.WinRate)
	assert.Equal(t, 100.0, p.TotalProfitLoss)
	assert.Equal(t, 5.0, p.AvgReturn30d)
}

func TestComputeIgnoresNonBuyTrades(t *testing.T) {
	trades := []models.Trade{
		{TransactionType: models.TypeSell, Shares: 100, PricePerShare: 10, CurrentPrice: f(50), Return30d: f(400)},
		{TransactionType: models.TypeBuy, Shares: 10, PricePerShare: 10, CurrentPrice: f(11), Return30d: f(10)},
	}

	p := Compute(trades, time.Now())
	assert.Equal(t, 2, p.TotalTrades)
	assert.Equal(t, 100.0, p.WinRate, "only the buy trade participates")
	assert.Equal(t, 10.0, p.TotalProfitLoss)
	assert.Equal(t, 10.0, p.AvgReturn30d)
}

func TestComputeNoReturnData(t *testing.T) {
	trades := []models.Trade{
		{TransactionType: models.TypeBuy, Shares: 100, PricePerShare: 10},
	}

	p := Compute(trades, time.Now())
	assert.Equal(t, 0.0, p.WinRate)
	assert.Equal(t, 0.0, p.AvgReturn30d)
	assert.Equal(t, 0.0, p.TotalProfitLoss)
}

func TestComputePerformanceScore(t *testing.T) {
	var trades []models.Trade
	for n := 0; n < 20; n++ {
		trades = append(trades, models.Trade{
			TransactionType: models.TypeBuy,
			Shares:          10,
			PricePerShare:   10,
			Return30d:       f(5),
			Return90d:       f(8),
		})
	}

	p := Compute(trades, time.Now())
	// 0.4*8 + 0.3*100 + 0.3*min(20/10,1)*10 = 3.2 + 30 + 3
	assert.InDelta(t, 36.2, p.PerformanceScore, 1e-9)
}

func TestComputeEmptyLedger(t *testing.T) {
	p := Compute(nil, time.Now())
	assert.Equal(t, 0, p.TotalTrades)
	assert.Equal(t, 0.0, p.PerformanceScore)
}

func TestRecomputeFullReplace(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	st := new(MockStore)

	trades := []models.Trade{
		{TransactionType: models.TypeBuy, Shares: 100, PricePerShare: 10, CurrentPrice: f(12), Return30d: f(20)},
	}
	st.On("TradesByTrader", mock.Anything, int64(7)).Return(trades, nil)
	st.On("UpdateTraderPerformance", mock.Anything, int64(7), mock.MatchedBy(func(p models.Performance) bool {
		return p.TotalTrades == 1 && p.WinRate == 100.0 && p.TotalProfitLoss == 200.0 && p.CalculatedAt.Equal(now)
	})).Return(nil)

	e := NewEngine(st, 2)
	e.now = func() time.Time { return now }

	require.NoError(t, e.Recompute(context.Background(), []int64{7}))
	st.AssertExpectations(t)
}

func TestRecomputeAllQueriesEveryTrader(t *testing.T) {
	st := new(MockStore)
	st.On("TraderIDs", mock.Anything).Return([]int64{1, 2}, nil)
	st.On("TradesByTrader", mock.Anything, mock.Anything).Return([]models.Trade{}, nil)
	st.On("UpdateTraderPerformance", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	e := NewEngine(st, 4)
	require.NoError(t, e.RecomputeAll(context.Background()))

	st.AssertNumberOfCalls(t, "TradesByTrader", 2)
	st.AssertNumberOfCalls(t, "UpdateTraderPerformance", 2)
}

func TestRecomputeIsRepeatable(t *testing.T) {
	st := new(MockStore)
	trades := []models.Trade{
		{TransactionType: models.TypeBuy, Shares: 10, PricePerShare: 5, CurrentPrice: f(6), Return30d: f(20)},
	}
	st.On("TradesByTrader", mock.Anything, int64(1)).Return(trades, nil)

	var got []models.Performance
	st.On("UpdateTraderPerformance", mock.Anything, int64(1), mock.Anything).
		Run(func(args mock.Arguments) {
			got = append(got, args.Get(2).(models.Performance))
		}).Return(nil)

	now := time.Now()
	e := NewEngine(st, 1)
	e.now = func() time.Time { return now }

	require.NoError(t, e.Recompute(context.Background(), []int64{1}))
	require.NoError(t, e.Recompute(context.Background(), []int64{1}))

	require.Len(t, got, 2)
	assert.Equal(t, got[0], got[1], "recompute is a deterministic full replace")
}
