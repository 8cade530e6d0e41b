package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"BUY", Buy, false},
		{"buy", Buy, false},
		{" Sell ", Sell, false},
		{"hold", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSide(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSideHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Buy.Sign())
	assert.Equal(t, -1.0, Sell.Sign())
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.False(t, Side("HOLD").Valid())
}

func TestStateOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Long, StateOf(3))
	assert.Equal(t, Short, StateOf(-0.5))
	assert.Equal(t, Flat, StateOf(0))
	assert.Equal(t, 4.0, Position{Qty: -4}.Abs())
}

func TestOrderSettleIsFinal(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	o := NewOrder("o-1", MarketOrderRequest{Symbol: "SPY", Side: Buy, Qty: 10}, now)

	assert.Equal(t, "pending", o.Status().String())
	assert.Zero(t, o.FilledQty())
	assert.True(t, o.FilledAt().IsZero())

	require.NoError(t, o.Settle(Filled{Qty: 10, Price: 501.25, At: now}))
	assert.True(t, o.Terminal())
	assert.Equal(t, 10.0, o.FilledQty())
	assert.Equal(t, 501.25, o.FilledPrice())
	assert.Equal(t, now, o.FilledAt())

	assert.ErrorIs(t, o.Settle(Canceled{At: now}), ErrOrderTerminal)
	assert.ErrorIs(t, o.Settle(Rejected{Reason: "late"}), ErrOrderTerminal)
	assert.Equal(t, "filled", o.Status().String())
}

func TestOrderSettleRejectsPending(t *testing.T) {
	t.Parallel()

	var o Order
	assert.Error(t, o.Settle(Pending{}))
	assert.Error(t, o.Settle(nil))
	assert.False(t, o.Terminal())

	require.NoError(t, o.Settle(Rejected{Reason: "simulated rejection"}))
	assert.Zero(t, o.FilledQty())
	assert.Zero(t, o.FilledPrice())
}

func TestMarketOrderRequestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MarketOrderRequest{Symbol: "SPY", Side: Sell, Qty: 1}.Validate())
	assert.Error(t, MarketOrderRequest{Side: Sell, Qty: 1}.Validate())
	assert.Error(t, MarketOrderRequest{Symbol: "SPY", Side: "x", Qty: 1}.Validate())
	assert.Error(t, MarketOrderRequest{Symbol: "SPY", Side: Buy, Qty: -1}.Validate())
}
