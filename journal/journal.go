// Package journal records the append-only trade and equity streams.
package journal

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type UpdateType string

const (
	UpdateInit  UpdateType = "INIT"
	UpdateTick  UpdateType = "TICK"
	UpdateTrade UpdateType = "TRADE"
)

// TradeRecord is one terminal order outcome.
type TradeRecord struct {
	Time        time.Time `json:"timestamp"`
	SignalTime  time.Time `json:"signal_timestamp,omitzero"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	FilledPrice float64   `json:"filled_price"`
	Status      string    `json:"status"`
}

// EquitySnapshot is the account valuation at a point in time.
type EquitySnapshot struct {
	Time           time.Time  `json:"timestamp"`
	UpdateType     UpdateType `json:"update_type"`
	Cash           float64    `json:"cash"`
	PortfolioValue float64    `json:"portfolio_value"`
	BuyingPower    float64    `json:"buying_power"`
	Positions      int        `json:"positions"`
	TradesExecuted int        `json:"trades_executed"`
}

// Journal persists trades and equity snapshots. A nil error means the
// record is durable.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Rounded returns e with money values rounded to cents.
func (e EquitySnapshot) Rounded() EquitySnapshot {
	e.Cash = cents(e.Cash)
	e.PortfolioValue = cents(e.PortfolioValue)
	e.BuyingPower = cents(e.BuyingPower)
	return e
}

func cents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Multi fans every record out to all journals. Every journal is attempted
// and the errors are joined.
type Multi []Journal

func (m Multi) RecordTrade(t TradeRecord) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordTrade(t))
	}
	return errors.Join(errs...)
}

func (m Multi) RecordEquity(e EquitySnapshot) error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.RecordEquity(e))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
