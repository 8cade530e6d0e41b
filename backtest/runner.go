package backtest

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/execsim/book"
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/slippage"
)

var ErrNegativeTick = errors.New("negative tick index")

// TradeResult is one execution without position tracking.
type TradeResult struct {
	ExecutedPrice float64 `json:"executed_price"`
	Notional      float64 `json:"notional"`
	Cost          float64 `json:"cost"`
	PnL           float64 `json:"pnl"`
	Slippage      float64 `json:"slippage"`
}

// MTMResult is the ledger state after one (signal, price) pair.
type MTMResult struct {
	Position         float64 `json:"position"`
	Cash             float64 `json:"cash"`
	MTM              float64 `json:"mtm"`
	ExecutedNotional float64 `json:"executed_notional"`
	Cost             float64 `json:"cost"`
}

// TickSignal queues a signal for execution at a tick index.
type TickSignal struct {
	Tick   int
	Signal market.Signal
}

type TickResult struct {
	Tick          int     `json:"tick"`
	ExecutedPrice float64 `json:"executed_price"`
	Notional      float64 `json:"notional"`
	Cost          float64 `json:"cost"`
	PnL           float64 `json:"pnl"`
	Slippage      float64 `json:"slippage"`
	Position      float64 `json:"position"`
	Cash          float64 `json:"cash"`
	FilledQty     float64 `json:"filled_qty"`
	RemainingQty  float64 `json:"remaining_qty"`
}

// Runner replays signals through a cost model. The zero value is a
// frictionless runner with logging disabled.
type Runner struct {
	Model slippage.Model
	Log   zerolog.Logger
}

func NewRunner(m slippage.Model, log zerolog.Logger) Runner {
	return Runner{Model: m, Log: log}
}

// Run prices each signal at its own reference price. No position is kept.
func Run(signals []market.Signal, m slippage.Model) []TradeResult {
	return Runner{Model: m, Log: zerolog.Nop()}.Run(signals)
}

func (r Runner) Run(signals []market.Signal) []TradeResult {
	out := make([]TradeResult, 0, len(signals))
	for _, sig := range signals {
		notional, cost := r.Model.Trade(sig.Price, sig.Qty, sig.Side)

		res := TradeResult{
			ExecutedPrice: sig.Price,
			Notional:      notional,
			Cost:          cost,
			PnL:           pnl(sig.Side, notional, cost),
		}
		if sig.Qty != 0 {
			res.ExecutedPrice = notional / sig.Qty
			res.Slippage = res.ExecutedPrice - sig.Price
		}
		out = append(out, res)

		r.Log.Debug().
			Str("side", string(sig.Side)).
			Float64("qty", sig.Qty).
			Float64("executed_price", res.ExecutedPrice).
			Float64("cost", cost).
			Float64("pnl", res.PnL).
			Msg("trade executed")
	}
	return out
}

// RunMTM pairs signals with market prices, stopping at the shorter input,
// and marks the ledger after every execution.
func RunMTM(signals []market.Signal, prices []float64, m slippage.Model) []MTMResult {
	return Runner{Model: m, Log: zerolog.Nop()}.RunMTM(signals, prices)
}

func (r Runner) RunMTM(signals []market.Signal, prices []float64) []MTMResult {
	n := min(len(signals), len(prices))
	out := make([]MTMResult, 0, n)

	var led Ledger
	for i := 0; i < n; i++ {
		sig := signals[i]
		notional, cost := r.Model.Trade(sig.Price, sig.Qty, sig.Side)
		led.Apply(sig.Side, sig.Qty, notional, cost)

		res := MTMResult{
			Position:         led.Position,
			Cash:             led.Cash,
			MTM:              led.MarkToMarket(prices[i]),
			ExecutedNotional: notional,
			Cost:             cost,
		}
		out = append(out, res)

		r.Log.Debug().
			Int("step", i).
			Str("side", string(sig.Side)).
			Float64("qty", sig.Qty).
			Float64("position", res.Position).
			Float64("cash", res.Cash).
			Float64("mtm", res.MTM).
			Msg("mtm update")
	}
	return out
}

// RunTicks executes queued signals against a per-tick price series. Signals
// for the same tick run in queue order. Fill strategy per signal, first
// match wins: order book (given, or synthetic around the tick price when
// UseOrderBook is set), volume-aware slippage when AvailableVolume is set,
// plain slippage otherwise. An unfilled remainder is reported in
// RemainingQty and not carried to later ticks. Signals queued past the end
// of prices never execute.
func RunTicks(queued []TickSignal, prices []float64, m slippage.Model) ([]TickResult, error) {
	return Runner{Model: m, Log: zerolog.Nop()}.RunTicks(queued, prices)
}

func (r Runner) RunTicks(queued []TickSignal, prices []float64) ([]TickResult, error) {
	byTick := make(map[int][]market.Signal)
	for _, q := range queued {
		if q.Tick < 0 {
			return nil, fmt.Errorf("run ticks: %w: %d", ErrNegativeTick, q.Tick)
		}
		byTick[q.Tick] = append(byTick[q.Tick], q.Signal)
	}

	var led Ledger
	var out []TickResult

	for t, price := range prices {
		for _, sig := range byTick[t] {
			filled, notional := r.fill(sig, price)

			var cost float64
			if filled > 0 {
				cost = slippage.TransactionCost(notional, r.Model.CommissionPct, r.Model.FixedFee)
			}
			led.Apply(sig.Side, filled, notional, cost)

			res := TickResult{
				Tick:         t,
				Notional:     notional,
				Cost:         cost,
				PnL:          pnl(sig.Side, notional, cost),
				Position:     led.Position,
				Cash:         led.Cash,
				FilledQty:    filled,
				RemainingQty: max(0, sig.Qty-filled),
			}
			if filled > 0 {
				res.ExecutedPrice = notional / filled
				res.Slippage = res.ExecutedPrice - price
			}
			out = append(out, res)

			ev := r.Log.Debug()
			if res.RemainingQty > 0 {
				ev = r.Log.Warn()
			}
			ev.Int("tick", t).
				Str("side", string(sig.Side)).
				Float64("qty", sig.Qty).
				Float64("filled", filled).
				Float64("executed_price", res.ExecutedPrice).
				Float64("cost", cost).
				Float64("position", led.Position).
				Float64("cash", led.Cash).
				Msg("tick trade")
		}
	}
	return out, nil
}

// fill returns the executed quantity and notional for sig at price.
func (r Runner) fill(sig market.Signal, price float64) (float64, float64) {
	if sig.Book != nil || sig.UseOrderBook {
		b := sig.Book
		if b == nil {
			syn := book.DefaultSynthetic(price)
			b = &syn
		}
		res := book.Simulate(sig.Qty, sig.Side, sig.LimitPrice, b.Side(sig.Side))
		if res.AvgPrice == nil {
			return 0, 0
		}
		return res.ExecutedQty, *res.AvgPrice * res.ExecutedQty
	}

	if sig.AvailableVolume != nil {
		vf := slippage.ApplyVolumeAware(price, sig.Qty, sig.Side, r.Model.SlippageBp, *sig.AvailableVolume, r.Model.Impact())
		return vf.FilledQty, vf.Price * vf.FilledQty
	}

	return sig.Qty, slippage.Apply(price, sig.Side, r.Model.SlippageBp) * sig.Qty
}
