package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/execsim/broker"
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/risk"
)

// Reason says why a signal did not produce a trade.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonInvalid     Reason = "invalid"
	ReasonSymbol      Reason = "symbol"
	ReasonNoPrice     Reason = "no_price"
	ReasonState       Reason = "state"
	ReasonConfidence  Reason = "confidence"
	ReasonEdge        Reason = "edge"
	ReasonCooldown    Reason = "cooldown"
	ReasonSizing      Reason = "sizing"
	ReasonBuyingPower Reason = "buying_power"
	ReasonPosition    Reason = "position"
	ReasonExposure    Reason = "exposure"
	ReasonRejected    Reason = "rejected"
	ReasonTimeout     Reason = "timeout"
	ReasonCanceled    Reason = "canceled"
)

// Decision is the outcome of one signal. Order is set once an order was
// submitted, whatever its fate.
type Decision struct {
	Executed bool
	Reason   Reason
	Qty      float64
	Order    *broker.Order
}

func filtered(r Reason) Decision { return Decision{Reason: r} }

// ProcessSignal runs sig through the state machine and admission filters
// at price, and if admitted submits a market order and waits for it to
// settle. A filtered signal changes nothing. The error is reserved for
// broker and journal failures.
func (e *Engine) ProcessSignal(ctx context.Context, sig market.Signal, price float64) (Decision, error) {
	d, err := e.processSignal(ctx, sig, price)
	if err != nil {
		e.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("failed to process signal")
		return d, err
	}
	if !d.Executed {
		e.metrics.Filtered(string(d.Reason))
	}
	return d, nil
}

func (e *Engine) processSignal(ctx context.Context, sig market.Signal, price float64) (Decision, error) {
	log := e.log.With().
		Str("symbol", sig.Symbol).
		Str("side", string(sig.Side)).
		Time("signal_time", sig.Timestamp).
		Logger()

	if sig.Qty <= 0 || !sig.Side.Valid() || sig.Symbol == "" {
		log.Debug().Float64("qty", sig.Qty).Msg("signal filtered - invalid")
		return filtered(ReasonInvalid), nil
	}
	if e.cfg.PrimarySymbol != "" && sig.Symbol != e.cfg.PrimarySymbol {
		log.Debug().Str("primary", e.cfg.PrimarySymbol).Msg("signal filtered - not the primary symbol")
		return filtered(ReasonSymbol), nil
	}
	if price <= 0 {
		log.Debug().Float64("price", price).Msg("signal filtered - no market price")
		return filtered(ReasonNoPrice), nil
	}

	positions, err := e.venue.Positions(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("positions: %w", err)
	}
	held := findPosition(positions, sig.Symbol)
	current := held.State()

	if (current == broker.Long && sig.Side == broker.Buy) || (current == broker.Short && sig.Side == broker.Sell) {
		log.Debug().Str("state", string(current)).Msg("signal filtered - already positioned")
		return filtered(ReasonState), nil
	}

	if sig.Confidence != nil && *sig.Confidence < e.cfg.MinConfidence {
		log.Debug().
			Float64("confidence", *sig.Confidence).
			Float64("min_required", e.cfg.MinConfidence).
			Msg("signal filtered - low confidence")
		return filtered(ReasonConfidence), nil
	}

	if sig.ExpectedEdgeBp != nil && *sig.ExpectedEdgeBp < e.cfg.MinEdgeBp {
		log.Debug().
			Float64("expected_edge_bp", *sig.ExpectedEdgeBp).
			Float64("min_required_bp", e.cfg.MinEdgeBp).
			Msg("signal filtered - insufficient edge")
		return filtered(ReasonEdge), nil
	}

	now := e.clock.Now()
	if last, ok := e.lastTrade[sig.Symbol]; ok && now.Sub(last) < e.cfg.Cooldown {
		log.Debug().
			Dur("since_last", now.Sub(last)).
			Dur("cooldown", e.cfg.Cooldown).
			Msg("signal filtered - too frequent")
		return filtered(ReasonCooldown), nil
	}

	acct, err := e.venue.GetAccount(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("account: %w", err)
	}
	qty := risk.Size(risk.SizingInputs{
		PortfolioValue: acct.PortfolioValue,
		Price:          price,
		RequestedQty:   sig.Qty,
		RiskPct:        e.cfg.RiskPct,
		MinProfitBp:    e.cfg.MinEdgeBp,
		MaxPositionPct: e.cfg.MaxPositionPct,
	})
	if qty < 1 {
		log.Debug().
			Float64("portfolio_value", acct.PortfolioValue).
			Float64("risk_pct", e.cfg.RiskPct).
			Msg("signal filtered - insufficient capital for risk")
		return filtered(ReasonSizing), nil
	}

	switch sig.Side {
	case broker.Buy:
		if cost := qty * price; cost > acct.BuyingPower {
			log.Warn().Float64("required", cost).Float64("available", acct.BuyingPower).Msg("insufficient buying power")
			return filtered(ReasonBuyingPower), nil
		}
	case broker.Sell:
		if current == broker.Flat && !e.cfg.AllowShort {
			log.Warn().Float64("requested", qty).Float64("available", 0).Msg("insufficient position to sell")
			return filtered(ReasonPosition), nil
		}
		if current == broker.Long && held.Qty < qty {
			log.Warn().Float64("requested", qty).Float64("available", held.Qty).Msg("insufficient position to sell")
			return filtered(ReasonPosition), nil
		}
	}

	if e.exposure != nil {
		p := e.projectedPortfolio(acct, positions, sig.Symbol, sig.Side, qty, price)
		if ok, violations := e.exposure.CheckExposure(p); !ok {
			log.Warn().Int("violations", len(violations)).Msg("signal filtered - exposure limits")
			return filtered(ReasonExposure), nil
		}
	}

	return e.submit(ctx, sig, qty, price, current, now)
}

// submit places the order and polls it to a terminal state. The cached
// state is reconciled with the broker only once a signal is admitted.
func (e *Engine) submit(ctx context.Context, sig market.Signal, qty, price float64, from broker.PositionState, now time.Time) (Decision, error) {
	e.state[sig.Symbol] = from
	e.prices[sig.Symbol] = price
	e.venue.SetMarketPrice(sig.Symbol, price)

	order, err := e.venue.CreateMarketOrder(ctx, broker.MarketOrderRequest{
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Qty:        qty,
		SignalTime: sig.Timestamp,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("submit order: %w", err)
	}

	settled, timedOut, err := e.await(ctx, order.ID)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{Qty: qty, Order: &settled}
	if timedOut {
		d.Reason = ReasonTimeout
		e.log.Warn().
			Str("symbol", sig.Symbol).
			Str("side", string(sig.Side)).
			Str("order_id", settled.ID).
			Msg("order did not fill within timeout")
		return d, nil
	}

	switch st := settled.Status().(type) {
	case broker.Filled, broker.PartiallyFilled:
		d.Executed = true
		e.tradesExecuted++
		e.lastTrade[sig.Symbol] = now
		to := transition(from, sig.Side)
		e.state[sig.Symbol] = to

		e.log.Info().
			Str("symbol", sig.Symbol).
			Str("side", string(sig.Side)).
			Str("order_id", settled.ID).
			Float64("qty", settled.FilledQty()).
			Float64("price", settled.FilledPrice()).
			Str("transition", string(from)+" -> "+string(to)).
			Msg("trade executed")
	case broker.Rejected:
		d.Reason = ReasonRejected
		e.log.Warn().Str("order_id", settled.ID).Str("reason", st.Reason).Msg("order rejected")
	case broker.Canceled:
		d.Reason = ReasonCanceled
	}
	return d, nil
}

// await polls the order up to PollAttempts times. An order still pending
// after that is canceled so it cannot fill behind the state cache, and
// timedOut is reported.
func (e *Engine) await(ctx context.Context, id string) (o broker.Order, timedOut bool, err error) {
	for attempt := 0; attempt < e.cfg.PollAttempts; attempt++ {
		if o, err = e.venue.GetOrder(ctx, id); err != nil {
			return o, false, err
		}
		if o.Terminal() {
			return o, false, nil
		}
		e.clock.Sleep(e.cfg.PollInterval)
	}

	cerr := e.venue.CancelOrder(ctx, id)
	if cerr != nil && !errors.Is(cerr, broker.ErrOrderTerminal) {
		return o, false, fmt.Errorf("cancel timed out order: %w", cerr)
	}
	if o, err = e.venue.GetOrder(ctx, id); err != nil {
		return o, false, err
	}
	// A terminal error means the fill landed between the last poll and
	// the cancel.
	return o, cerr == nil, nil
}

// transition applies the state table to a filled order.
func transition(from broker.PositionState, side broker.Side) broker.PositionState {
	switch {
	case from == broker.Flat && side == broker.Buy:
		return broker.Long
	case from == broker.Flat && side == broker.Sell:
		return broker.Short
	}
	return broker.Flat
}

func findPosition(ps []broker.Position, symbol string) broker.Position {
	for _, p := range ps {
		if p.Symbol == symbol {
			return p
		}
	}
	return broker.Position{Symbol: symbol}
}

// projectedPortfolio is the exposure left behind if the order fills at
// price.
func (e *Engine) projectedPortfolio(acct broker.Account, ps []broker.Position, symbol string, side broker.Side, qty, price float64) risk.Portfolio {
	p := risk.Portfolio{
		Cash:      acct.Cash - side.Sign()*qty*price,
		Positions: make(map[string]float64, len(ps)+1),
	}
	for _, pos := range ps {
		mark := pos.AvgPrice
		if px, ok := e.prices[pos.Symbol]; ok {
			mark = px
		}
		if pos.Symbol == symbol {
			mark = price
		}
		p.Positions[pos.Symbol] = pos.Qty * mark
	}
	p.Positions[symbol] += side.Sign() * qty * price
	return p
}
