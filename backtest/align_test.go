package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/execsim/broker"
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/slippage"
)

var base = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func at(m int) time.Time { return base.Add(time.Duration(m) * time.Minute) }

func testTicks() []market.Tick {
	return []market.Tick{
		{Timestamp: at(0), Symbol: "SPY", Close: 100},
		{Timestamp: at(5), Symbol: "SPY", Close: 101},
		{Timestamp: at(10), Symbol: "SPY", Close: 102},
	}
}

func TestAlign(t *testing.T) {
	t.Parallel()

	signals := []market.Signal{
		{Timestamp: at(0), Symbol: "SPY", Side: broker.Buy, Qty: 1},
		{Timestamp: at(3), Symbol: "SPY", Side: broker.Sell, Qty: 1, Price: 99.5},
		{Timestamp: at(10), Symbol: "SPY", Side: broker.Buy, Qty: 1},
		{Timestamp: at(11), Symbol: "SPY", Side: broker.Sell, Qty: 1},
	}

	out, prices := Align(signals, testTicks())
	require.Len(t, out, 3)
	assert.Equal(t, []float64{100, 101, 102}, prices)
	assert.Equal(t, 100.0, out[0].Price)
	assert.Equal(t, 99.5, out[1].Price, "own reference price kept")
	assert.Equal(t, 102.0, out[2].Price)
}

func TestAlignWithoutTicks(t *testing.T) {
	t.Parallel()

	signals := []market.Signal{
		{Timestamp: at(0), Side: broker.Buy, Qty: 1, Price: 10},
		{Timestamp: at(1), Side: broker.Sell, Qty: 1},
		{Timestamp: at(2), Side: broker.Sell, Qty: 1, Price: 11},
	}
	out, prices := Align(signals, nil)
	assert.Len(t, out, 2)
	assert.Equal(t, []float64{10, 11}, prices)
}

func TestQueue(t *testing.T) {
	t.Parallel()

	signals := []market.Signal{
		{Timestamp: at(1), Symbol: "SPY", Side: broker.Buy, Qty: 1},
		{Timestamp: at(4), Symbol: "SPY", Side: broker.Buy, Qty: 2},
		{Timestamp: at(6), Symbol: "SPY", Side: broker.Sell, Qty: 3},
		{Timestamp: at(30), Symbol: "SPY", Side: broker.Sell, Qty: 3},
	}
	queued, prices := Queue(signals, testTicks())

	assert.Equal(t, []float64{100, 101, 102}, prices)
	require.Len(t, queued, 3)
	assert.Equal(t, []int{1, 1, 2}, []int{queued[0].Tick, queued[1].Tick, queued[2].Tick})

	res, err := RunTicks(queued, prices, slippage.Model{SlippageBp: 1})
	require.NoError(t, err)
	assert.Len(t, res, 3)
}

func TestAlignMatchesSymbol(t *testing.T) {
	t.Parallel()

	ticks := []market.Tick{
		{Timestamp: at(0), Symbol: "QQQ", Close: 400},
		{Timestamp: at(0), Symbol: "SPY", Close: 100},
		{Timestamp: at(5), Symbol: "QQQ", Close: 401},
		{Timestamp: at(7), Symbol: "SPY", Close: 101},
	}
	signals := []market.Signal{
		{Timestamp: at(0), Symbol: "SPY", Side: broker.Buy, Qty: 1},
		{Timestamp: at(1), Symbol: "SPY", Side: broker.Sell, Qty: 1},
		{Timestamp: at(6), Symbol: "QQQ", Side: broker.Buy, Qty: 1},
		{Timestamp: at(6), Symbol: "IWM", Side: broker.Buy, Qty: 1},
	}

	out, prices := Align(signals, ticks)
	require.Len(t, out, 2)
	assert.Equal(t, []float64{100, 101}, prices)
	assert.Equal(t, 100.0, out[0].Price)
	assert.Equal(t, 101.0, out[1].Price)

	queued, closes := Queue(signals, ticks)
	assert.Equal(t, []float64{400, 100, 401, 101}, closes)
	require.Len(t, queued, 2)
	assert.Equal(t, []int{1, 3}, []int{queued[0].Tick, queued[1].Tick})
}

func TestSplitWindows(t *testing.T) {
	t.Parallel()

	signals := make([]market.Signal, 7)
	prices := make([]float64, 7)
	for i := range prices {
		prices[i] = float64(100 + i)
	}

	ws := SplitWindows(signals, prices, 3)
	require.Len(t, ws, 3)
	assert.Equal(t, []float64{100, 101, 102}, ws[0].Prices)
	assert.Equal(t, []float64{103, 104, 105}, ws[1].Prices)
	assert.Equal(t, []float64{106}, ws[2].Prices)

	assert.Len(t, SplitWindows(signals, prices, 0), 1)
	assert.Len(t, SplitWindows(signals[:2], prices[:2], 5), 2)
	assert.Empty(t, SplitWindows(nil, nil, 3))
}
