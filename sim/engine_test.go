package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/execsim/broker"
	"github.com/rustyeddy/execsim/journal"
)

type testJournal struct {
	trades   []journal.TradeRecord
	equity   []journal.EquitySnapshot
	closed   bool
	tradeErr error
}

func (j *testJournal) RecordTrade(rec journal.TradeRecord) error {
	if j.tradeErr != nil {
		return j.tradeErr
	}
	j.trades = append(j.trades, rec)
	return nil
}

func (j *testJournal) RecordEquity(rec journal.EquitySnapshot) error {
	j.equity = append(j.equity, rec)
	return nil
}

func (j *testJournal) Close() error {
	j.closed = true
	return nil
}

// newEngine returns an engine with no rejections, no slippage, and no
// valuation noise unless opts say otherwise.
func newEngine(t *testing.T, cash float64, opts ...Option) (*Engine, *clock.Mock, *testJournal) {
	t.Helper()
	mock := clock.NewMock()
	j := &testJournal{}
	base := []Option{
		WithClock(mock),
		WithRand(rand.New(rand.NewSource(1))),
		WithRejectRate(0),
		WithMaxSlippageBp(0),
		WithValuationNoise(0),
	}
	acct := broker.Account{ID: "sim-1", Cash: cash}
	return NewEngine(acct, j, append(base, opts...)...), mock, j
}

func submit(t *testing.T, e *Engine, symbol string, side broker.Side, qty float64) broker.Order {
	t.Helper()
	o, err := e.CreateMarketOrder(context.Background(), broker.MarketOrderRequest{Symbol: symbol, Side: side, Qty: qty})
	require.NoError(t, err)
	return o
}

func settle(t *testing.T, e *Engine, mock *clock.Mock, id string) broker.Order {
	t.Helper()
	mock.Add(DefaultFillDelay)
	o, err := e.GetOrder(context.Background(), id)
	require.NoError(t, err)
	require.True(t, o.Terminal(), "order %s still %s", id, o.Status())
	return o
}

func TestNewEngineValuesCash(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, 100000)
	acct, err := e.GetAccount(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 100000.0, acct.Cash)
	assert.Equal(t, 100000.0, acct.PortfolioValue)
	assert.Equal(t, 100000.0, acct.BuyingPower)
	assert.Equal(t, 1.0, acct.Multiplier)
}

func TestOrderLifecycle(t *testing.T) {
	t.Parallel()

	e, mock, j := newEngine(t, 100000)
	ctx := context.Background()
	e.SetMarketPrice("SPY", 100)

	o := submit(t, e, "SPY", broker.Buy, 10)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, broker.Pending{}, o.Status())

	got, err := e.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, broker.Pending{}, got.Status())
	assert.Zero(t, got.FilledQty())

	mock.Add(time.Second)
	got, err = e.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, got.Terminal())
	assert.Equal(t, 1, e.Pending())

	mock.Add(time.Second)
	got, err = e.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, "filled", got.Status().String())
	assert.Equal(t, 10.0, got.FilledQty())
	assert.Equal(t, 100.0, got.FilledPrice())
	assert.Zero(t, e.Pending())

	// Later polls never revert a terminal order.
	mock.Add(time.Minute)
	again, err := e.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Status(), again.Status())

	acct, _ := e.GetAccount(ctx)
	assert.Equal(t, 99000.0, acct.Cash)
	assert.Equal(t, 100000.0, acct.PortfolioValue)

	pos, ok := e.Position("SPY")
	require.True(t, ok)
	assert.Equal(t, 10.0, pos.Qty)
	assert.Equal(t, broker.Long, pos.State())

	require.Len(t, j.trades, 1)
	assert.Equal(t, o.ID, j.trades[0].OrderID)
	assert.Equal(t, "filled", j.trades[0].Status)
	require.Len(t, j.equity, 1)
	assert.Equal(t, journal.UpdateTrade, j.equity[0].UpdateType)
	assert.Equal(t, 1, j.equity[0].TradesExecuted)
	assert.Equal(t, 1, j.equity[0].Positions)
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, 1000)
	ctx := context.Background()

	_, err := e.CreateMarketOrder(ctx, broker.MarketOrderRequest{Symbol: "SPY", Side: broker.Buy, Qty: 1})
	assert.ErrorIs(t, err, ErrNoPrice)

	e.SetMarketPrice("SPY", 10)
	_, err = e.CreateMarketOrder(ctx, broker.MarketOrderRequest{Symbol: "SPY", Side: broker.Buy, Qty: 0})
	assert.Error(t, err)
	_, err = e.CreateMarketOrder(ctx, broker.MarketOrderRequest{Symbol: "SPY", Side: "HOLD", Qty: 1})
	assert.Error(t, err)
	assert.Zero(t, e.Pending())
}

func TestSlippageIsAdverse(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 1e9, WithMaxSlippageBp(2))
	e.SetMarketPrice("SPY", 100)

	for i := 0; i < 20; i++ {
		buy := settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 1).ID)
		assert.GreaterOrEqual(t, buy.FilledPrice(), 100.0)
		assert.LessOrEqual(t, buy.FilledPrice(), 100.02)

		sell := settle(t, e, mock, submit(t, e, "SPY", broker.Sell, 1).ID)
		assert.LessOrEqual(t, sell.FilledPrice(), 100.0)
		assert.GreaterOrEqual(t, sell.FilledPrice(), 99.98)
	}
}

func TestRejectedOrderLeavesLedger(t *testing.T) {
	t.Parallel()

	e, mock, j := newEngine(t, 5000, WithRejectRate(1))
	e.SetMarketPrice("SPY", 50)

	o := settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 10).ID)
	assert.Equal(t, "rejected", o.Status().String())
	assert.Zero(t, o.FilledQty())

	acct, _ := e.GetAccount(context.Background())
	assert.Equal(t, 5000.0, acct.Cash)
	_, ok := e.Position("SPY")
	assert.False(t, ok)

	require.Len(t, j.trades, 1)
	assert.Equal(t, "rejected", j.trades[0].Status)
	assert.Zero(t, j.trades[0].Qty)
	assert.Empty(t, j.equity)
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	e, mock, j := newEngine(t, 5000)
	ctx := context.Background()
	e.SetMarketPrice("SPY", 50)

	o := submit(t, e, "SPY", broker.Buy, 10)
	require.NoError(t, e.CancelOrder(ctx, o.ID))

	got, err := e.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "canceled", got.Status().String())

	// The scheduled fill is ignored.
	mock.Add(DefaultFillDelay)
	require.NoError(t, e.Advance(ctx))
	got, _ = e.GetOrder(ctx, o.ID)
	assert.Equal(t, "canceled", got.Status().String())
	_, ok := e.Position("SPY")
	assert.False(t, ok)

	assert.ErrorIs(t, e.CancelOrder(ctx, o.ID), broker.ErrOrderTerminal)
	assert.ErrorIs(t, e.CancelOrder(ctx, "nope"), ErrOrderNotFound)

	_, err = e.GetOrder(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	require.Len(t, j.trades, 1)
	assert.Equal(t, "canceled", j.trades[0].Status)
}

func TestCancelAfterDueFillsFirst(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 5000)
	e.SetMarketPrice("SPY", 50)

	o := submit(t, e, "SPY", broker.Buy, 10)
	mock.Add(DefaultFillDelay)

	err := e.CancelOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, broker.ErrOrderTerminal)

	got, _ := e.GetOrder(context.Background(), o.ID)
	assert.Equal(t, "filled", got.Status().String())
}

func TestWeightedAveragePrice(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 100000)

	e.SetMarketPrice("SPY", 100)
	settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 10).ID)
	e.SetMarketPrice("SPY", 110)
	settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 10).ID)

	pos, ok := e.Position("SPY")
	require.True(t, ok)
	assert.Equal(t, 20.0, pos.Qty)
	assert.InDelta(t, 105.0, pos.AvgPrice, 1e-9)

	acct, _ := e.GetAccount(context.Background())
	assert.InDelta(t, 97900.0, acct.Cash, 1e-9)

	// A partial reduction keeps the average.
	settle(t, e, mock, submit(t, e, "SPY", broker.Sell, 5).ID)
	pos, _ = e.Position("SPY")
	assert.Equal(t, 15.0, pos.Qty)
	assert.InDelta(t, 105.0, pos.AvgPrice, 1e-9)
}

func TestOversizedReductionClosesOnly(t *testing.T) {
	t.Parallel()

	e, mock, j := newEngine(t, 10000)
	e.SetMarketPrice("SPY", 100)

	settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 10).ID)
	o := settle(t, e, mock, submit(t, e, "SPY", broker.Sell, 15).ID)

	assert.Equal(t, "partially_filled", o.Status().String())
	assert.Equal(t, 10.0, o.FilledQty())
	_, ok := e.Position("SPY")
	assert.False(t, ok)

	acct, _ := e.GetAccount(context.Background())
	assert.Equal(t, 10000.0, acct.Cash)
	assert.Equal(t, 10000.0, acct.PortfolioValue)
	assert.Equal(t, "partially_filled", j.trades[1].Status)
}

func TestShortAndCover(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 10000)
	e.SetMarketPrice("QQQ", 200)

	settle(t, e, mock, submit(t, e, "QQQ", broker.Sell, 5).ID)
	pos, ok := e.Position("QQQ")
	require.True(t, ok)
	assert.Equal(t, -5.0, pos.Qty)
	assert.Equal(t, broker.Short, pos.State())

	acct, _ := e.GetAccount(context.Background())
	assert.Equal(t, 11000.0, acct.Cash)
	assert.Equal(t, 10000.0, acct.PortfolioValue)

	e.SetMarketPrice("QQQ", 190)
	settle(t, e, mock, submit(t, e, "QQQ", broker.Buy, 5).ID)
	_, ok = e.Position("QQQ")
	assert.False(t, ok)
	acct, _ = e.GetAccount(context.Background())
	assert.Equal(t, 10050.0, acct.Cash)
}

func TestLedgerInvariantUnderNoise(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 100000,
		WithValuationNoise(DefaultValuationNoise),
		WithMaxSlippageBp(2),
		WithRand(rand.New(rand.NewSource(42))),
	)
	e.SetMarketPrice("SPY", 400)
	e.SetMarketPrice("QQQ", 350)

	settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 12).ID)
	settle(t, e, mock, submit(t, e, "QQQ", broker.Sell, 7).ID)
	e.SetMarketPrice("SPY", 405)

	for i := 0; i < 5; i++ {
		acct := e.Revalue()
		positions, err := e.Positions(context.Background())
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.Equal(t, "QQQ", positions[0].Symbol)

		want := acct.Cash
		for _, p := range positions {
			obs, ok := e.Observed(p.Symbol)
			require.True(t, ok)
			mark, _ := e.MarketPrice(p.Symbol)
			assert.InEpsilon(t, mark, obs, DefaultValuationNoise+1e-9)
			want += p.Qty * obs
		}
		assert.InEpsilon(t, want, acct.PortfolioValue, 1e-6)
		assert.Equal(t, acct.PortfolioValue, acct.BuyingPower)
	}
}

func TestTrueValueIgnoresNoise(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 10000, WithValuationNoise(0.01))
	e.SetMarketPrice("SPY", 100)
	settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 10).ID)

	e.SetMarketPrice("SPY", 120)
	assert.Equal(t, 9000.0+1200.0, e.TrueValue())
}

func TestObservedPriceFloor(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 10000, WithValuationNoise(0.005))
	e.SetMarketPrice("PENNY", 0.5)
	settle(t, e, mock, submit(t, e, "PENNY", broker.Buy, 100).ID)

	obs, ok := e.Observed("PENNY")
	require.True(t, ok)
	assert.Equal(t, 1.0, obs)
}

func TestJournalErrorPropagates(t *testing.T) {
	t.Parallel()

	e, mock, j := newEngine(t, 10000)
	boom := errors.New("disk full")
	j.tradeErr = boom
	e.SetMarketPrice("SPY", 100)

	o := submit(t, e, "SPY", broker.Buy, 1)
	mock.Add(DefaultFillDelay)
	_, err := e.GetOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotOnDemand(t *testing.T) {
	t.Parallel()

	e, _, j := newEngine(t, 2500)
	snap, err := e.Snapshot(journal.UpdateInit)
	require.NoError(t, err)

	assert.Equal(t, journal.UpdateInit, snap.UpdateType)
	assert.Equal(t, 2500.0, snap.PortfolioValue)
	assert.Zero(t, snap.TradesExecuted)
	require.Len(t, j.equity, 1)
	assert.Len(t, e.Equity(), 1)
}

func TestClosePosition(t *testing.T) {
	t.Parallel()

	e, mock, _ := newEngine(t, 10000)
	ctx := context.Background()
	e.SetMarketPrice("SPY", 100)

	_, err := e.ClosePosition(ctx, "SPY")
	assert.ErrorIs(t, err, ErrNoPosition)

	settle(t, e, mock, submit(t, e, "SPY", broker.Buy, 3).ID)
	o, err := e.ClosePosition(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, broker.Sell, o.Side)
	assert.Equal(t, 3.0, o.Qty)

	settle(t, e, mock, o.ID)
	_, ok := e.Position("SPY")
	assert.False(t, ok)
	assert.Len(t, e.Trades(), 2)
}

func TestRestorePositions(t *testing.T) {
	t.Parallel()

	e, _, _ := newEngine(t, 5000)
	e.SetMarketPrice("SPY", 110)
	e.Restore(map[string]broker.Position{
		"SPY": {Qty: 10, AvgPrice: 100},
		"OLD": {Qty: 0, AvgPrice: 1},
	})

	positions, err := e.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "SPY", positions[0].Symbol)

	acct, _ := e.GetAccount(context.Background())
	assert.Equal(t, 5000.0+1100.0, acct.PortfolioValue)
}

func TestFillsSettleInSubmissionOrder(t *testing.T) {
	t.Parallel()

	e, mock, j := newEngine(t, 100000)
	e.SetMarketPrice("SPY", 10)

	a := submit(t, e, "SPY", broker.Buy, 1)
	b := submit(t, e, "SPY", broker.Buy, 2)
	mock.Add(DefaultFillDelay)
	require.NoError(t, e.Advance(context.Background()))

	require.Len(t, j.trades, 2)
	assert.Equal(t, a.ID, j.trades[0].OrderID)
	assert.Equal(t, b.ID, j.trades[1].OrderID)
	assert.True(t, a.ID < b.ID)
	assert.False(t, math.IsNaN(e.TrueValue()))
}
