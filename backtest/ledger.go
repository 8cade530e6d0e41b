package backtest

import "github.com/rustyeddy/execsim/broker"

// Ledger is the single-symbol cash/position book a backtest mutates. Each
// run owns its ledger; nothing is shared between runs.
type Ledger struct {
	Position float64
	Cash     float64
}

// Apply books an execution. Buys pay notional plus cost; sells receive
// notional less cost.
func (l *Ledger) Apply(side broker.Side, qty, notional, cost float64) {
	if side == broker.Sell {
		l.Position -= qty
		l.Cash += notional - cost
		return
	}
	l.Position += qty
	l.Cash -= notional + cost
}

// MarkToMarket values the ledger at price.
func (l Ledger) MarkToMarket(price float64) float64 {
	return l.Cash + l.Position*price
}

// pnl is the signed cash flow of a single execution.
func pnl(side broker.Side, notional, cost float64) float64 {
	if side == broker.Sell {
		return notional - cost
	}
	return -notional - cost
}
