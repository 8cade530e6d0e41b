package broker

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Broker is the order-entry surface the live filter trades against.
// Fill checking is pull-based: callers poll GetOrder until the order is
// terminal.
type Broker interface {
	GetAccount(ctx context.Context) (Account, error)
	CreateMarketOrder(ctx context.Context, req MarketOrderRequest) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	Positions(ctx context.Context) ([]Position, error)
}

// Side is the direction of a signal, order, or trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Sign is +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Opposite returns the closing side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Account is a point-in-time view of the simulated account.
// PortfolioValue is always Cash plus the marked value of open positions.
type Account struct {
	ID             string
	Cash           float64
	PortfolioValue float64
	BuyingPower    float64
	Multiplier     float64
}

type MarketOrderRequest struct {
	Symbol     string
	Side       Side
	Qty        float64
	SignalTime time.Time
}

func (r MarketOrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("order: symbol is required")
	}
	if !r.Side.Valid() {
		return fmt.Errorf("order: invalid side %q", r.Side)
	}
	if r.Qty <= 0 {
		return fmt.Errorf("order: quantity must be positive, got %v", r.Qty)
	}
	return nil
}
