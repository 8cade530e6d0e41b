package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/execsim/broker"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/metrics"
	"github.com/rustyeddy/execsim/pkg/id"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoPrice       = market.ErrNoPrice
	ErrNoPosition    = errors.New("no open position")
)

// qtyEpsilon below which a position counts as closed.
const qtyEpsilon = 1e-9

// Engine is a simulated broker. Orders settle through a time-ordered event
// queue after the fill delay; settlement happens lazily whenever GetOrder,
// Advance, or CancelOrder run. All randomness comes from the injected
// source and all time from the injected clock.
type Engine struct {
	mu sync.Mutex

	acct      broker.Account
	marks     *market.PriceStore
	observed  map[string]float64
	positions map[string]*broker.Position
	orders    map[string]*broker.Order
	queue     eventQueue
	seq       uint64

	trades []journal.TradeRecord
	equity []journal.EquitySnapshot

	journal journal.Journal
	clock   clock.Clock
	rng     *rand.Rand
	ids     *id.Generator
	log     zerolog.Logger
	metrics *metrics.Recorder

	fillDelay     time.Duration
	rejectRate    float64
	maxSlippageBp float64
	noise         float64
}

// NewEngine builds a broker holding acct.Cash and no positions. j receives
// every terminal order and every equity snapshot; it may not be nil.
func NewEngine(acct broker.Account, j journal.Journal, opts ...Option) *Engine {
	e := &Engine{
		acct:          acct,
		marks:         market.NewPriceStore(),
		observed:      make(map[string]float64),
		positions:     make(map[string]*broker.Position),
		orders:        make(map[string]*broker.Order),
		journal:       j,
		clock:         clock.New(),
		log:           zerolog.Nop(),
		fillDelay:     DefaultFillDelay,
		rejectRate:    DefaultRejectRate,
		maxSlippageBp: DefaultMaxSlippageBp,
		noise:         DefaultValuationNoise,
	}
	for _, o := range opts {
		o(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if e.ids == nil {
		e.ids = id.NewGenerator(e.rng)
	}
	if e.acct.Multiplier == 0 {
		e.acct.Multiplier = 1
	}
	e.revalueLocked()
	return e
}

func (e *Engine) Clock() clock.Clock { return e.clock }

// SetMarketPrice registers the true mark for symbol. It does not revalue.
func (e *Engine) SetMarketPrice(symbol string, price float64) {
	e.marks.Set(symbol, price)
}

// MarketPrice returns the true mark for symbol.
func (e *Engine) MarketPrice(symbol string) (float64, error) {
	return e.marks.Get(symbol)
}

// Prices returns a copy of all true marks.
func (e *Engine) Prices() map[string]float64 {
	return e.marks.Snapshot()
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

func (e *Engine) CreateMarketOrder(ctx context.Context, req broker.MarketOrderRequest) (broker.Order, error) {
	if err := req.Validate(); err != nil {
		return broker.Order{}, err
	}
	if _, err := e.marks.Get(req.Symbol); err != nil {
		return broker.Order{}, fmt.Errorf("create order: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	o := broker.NewOrder(e.ids.At(now), req, now)
	e.orders[o.ID] = &o

	e.seq++
	e.queue.schedule(fillEvent{due: now.Add(e.fillDelay), seq: e.seq, orderID: o.ID})

	e.metrics.Order(req.Symbol, string(req.Side))
	e.log.Debug().
		Str("order_id", o.ID).
		Str("symbol", o.Symbol).
		Str("side", string(o.Side)).
		Float64("qty", o.Qty).
		Msg("order submitted")

	return o, nil
}

// GetOrder settles any due events, then returns a copy of the order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (broker.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.processDueLocked(); err != nil {
		return broker.Order{}, err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return broker.Order{}, fmt.Errorf("get order: %w: %q", ErrOrderNotFound, orderID)
	}
	return *o, nil
}

// Advance settles every event due at the current clock time.
func (e *Engine) Advance(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processDueLocked()
}

// Pending reports how many orders are waiting to settle.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// CancelOrder cancels a pending order. Events already due settle first, so
// a cancel cannot overtake a fill that has happened in simulated time.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.processDueLocked(); err != nil {
		return err
	}
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel order: %w: %q", ErrOrderNotFound, orderID)
	}
	now := e.clock.Now()
	if err := o.Settle(broker.Canceled{At: now}); err != nil {
		return fmt.Errorf("cancel order %q: %w", orderID, err)
	}
	e.log.Info().Str("order_id", o.ID).Str("symbol", o.Symbol).Msg("order canceled")
	return e.recordOrderLocked(*o, now)
}

func (e *Engine) processDueLocked() error {
	now := e.clock.Now()
	for {
		ev, ok := e.queue.popDue(now)
		if !ok {
			return nil
		}
		o, ok := e.orders[ev.orderID]
		if !ok || o.Terminal() {
			continue
		}
		if err := e.settleLocked(o, ev.due); err != nil {
			return err
		}
	}
}

// settleLocked decides the fate of a due order and applies it.
func (e *Engine) settleLocked(o *broker.Order, at time.Time) error {
	if e.rng.Float64() < e.rejectRate {
		return e.rejectLocked(o, at, "simulated rejection")
	}

	mark, err := e.marks.Get(o.Symbol)
	if err != nil {
		return e.rejectLocked(o, at, "no market price")
	}

	slip := mark * e.rng.Float64() * e.maxSlippageBp / 10000
	price := roundCents(mark + o.Side.Sign()*slip)

	qty := o.Qty
	var status broker.OrderStatus = broker.Filled{Qty: qty, Price: price, At: at}
	if p, ok := e.positions[o.Symbol]; ok && p.Qty*o.Side.Sign() < 0 && qty > p.Abs()+qtyEpsilon {
		// Reductions never flip the position; the excess is dropped.
		qty = p.Abs()
		status = broker.PartiallyFilled{Qty: qty, Price: price, At: at}
	}

	if err := o.Settle(status); err != nil {
		return err
	}
	e.applyFillLocked(o.Symbol, o.Side, qty, price)
	e.revalueLocked()

	e.log.Info().
		Str("order_id", o.ID).
		Str("symbol", o.Symbol).
		Str("side", string(o.Side)).
		Float64("qty", qty).
		Float64("price", price).
		Str("status", status.String()).
		Msg("order filled")

	if err := e.recordOrderLocked(*o, at); err != nil {
		return err
	}
	return e.snapshotLocked(journal.UpdateTrade)
}

func (e *Engine) rejectLocked(o *broker.Order, at time.Time, reason string) error {
	if err := o.Settle(broker.Rejected{Reason: reason}); err != nil {
		return err
	}
	e.log.Warn().Str("order_id", o.ID).Str("symbol", o.Symbol).Str("reason", reason).Msg("order rejected")
	return e.recordOrderLocked(*o, at)
}

// applyFillLocked moves cash and the position for an executed quantity.
func (e *Engine) applyFillLocked(symbol string, side broker.Side, qty, price float64) {
	sign := side.Sign()
	e.acct.Cash -= sign * qty * price

	p, ok := e.positions[symbol]
	if !ok {
		e.positions[symbol] = &broker.Position{Symbol: symbol, Qty: sign * qty, AvgPrice: price}
		return
	}

	if p.Qty*sign > 0 {
		held := p.Abs()
		p.AvgPrice = (held*p.AvgPrice + qty*price) / (held + qty)
		p.Qty += sign * qty
		return
	}

	p.Qty += sign * qty
	if math.Abs(p.Qty) <= qtyEpsilon {
		delete(e.positions, symbol)
	}
}

// recordOrderLocked journals a terminal order.
func (e *Engine) recordOrderLocked(o broker.Order, at time.Time) error {
	rec := journal.TradeRecord{
		Time:        at,
		SignalTime:  o.SignalTime,
		OrderID:     o.ID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Qty:         o.FilledQty(),
		FilledPrice: o.FilledPrice(),
		Status:      o.Status().String(),
	}
	e.trades = append(e.trades, rec)
	e.metrics.Fill(o.Symbol, rec.Status, at.Sub(o.CreatedAt))

	if err := e.journal.RecordTrade(rec); err != nil {
		e.log.Error().Err(err).Str("order_id", o.ID).Msg("trade journal write failed")
		return fmt.Errorf("record trade %q: %w", o.ID, err)
	}
	return nil
}

// Revalue marks every position at a freshly drawn noisy observed price and
// recomputes PortfolioValue from scratch.
func (e *Engine) Revalue() broker.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.revalueLocked()
	return e.acct
}

func (e *Engine) revalueLocked() {
	pv := e.acct.Cash
	for sym, p := range e.positions {
		obs := e.observeLocked(sym, p)
		e.observed[sym] = obs
		pv += p.Qty * obs
	}
	e.acct.PortfolioValue = pv
	e.acct.BuyingPower = pv
	e.metrics.PortfolioValue(pv)
}

func (e *Engine) observeLocked(sym string, p *broker.Position) float64 {
	mark, err := e.marks.Get(sym)
	if err != nil {
		mark = p.AvgPrice
	}
	if e.noise == 0 {
		return mark
	}
	u := e.rng.Float64()*2 - 1
	return math.Max(1.0, mark*(1+u*e.noise))
}

// Observed returns the noisy price used for symbol at the last valuation.
func (e *Engine) Observed(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.observed[symbol]
	return p, ok
}

// TrueValue is cash plus positions at their true marks, with no noise.
func (e *Engine) TrueValue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.acct.Cash
	for sym, p := range e.positions {
		mark, err := e.marks.Get(sym)
		if err != nil {
			mark = p.AvgPrice
		}
		v += p.Qty * mark
	}
	return v
}

// Snapshot journals the current valuation tagged with updateType.
func (e *Engine) Snapshot(updateType journal.UpdateType) (journal.EquitySnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.snapshotLocked(updateType); err != nil {
		return journal.EquitySnapshot{}, err
	}
	return e.equity[len(e.equity)-1], nil
}

func (e *Engine) snapshotLocked(updateType journal.UpdateType) error {
	snap := journal.EquitySnapshot{
		Time:           e.clock.Now(),
		UpdateType:     updateType,
		Cash:           e.acct.Cash,
		PortfolioValue: e.acct.PortfolioValue,
		BuyingPower:    e.acct.BuyingPower,
		Positions:      len(e.positions),
		TradesExecuted: e.filledCountLocked(),
	}
	e.equity = append(e.equity, snap)
	if err := e.journal.RecordEquity(snap); err != nil {
		e.log.Error().Err(err).Str("update_type", string(updateType)).Msg("equity journal write failed")
		return fmt.Errorf("record equity: %w", err)
	}
	return nil
}

func (e *Engine) filledCountLocked() int {
	n := 0
	for _, t := range e.trades {
		if t.Qty > 0 {
			n++
		}
	}
	return n
}

// Positions returns open positions sorted by symbol.
func (e *Engine) Positions(ctx context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]broker.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Position returns the open position for symbol, if any.
func (e *Engine) Position(symbol string) (broker.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[symbol]
	if !ok {
		return broker.Position{}, false
	}
	return *p, true
}

// Trades returns every terminal order outcome in settlement order.
func (e *Engine) Trades() []journal.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]journal.TradeRecord(nil), e.trades...)
}

// Equity returns the in-memory snapshot history.
func (e *Engine) Equity() []journal.EquitySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]journal.EquitySnapshot(nil), e.equity...)
}

// ClosePosition submits an opposite market order for the full position.
func (e *Engine) ClosePosition(ctx context.Context, symbol string) (broker.Order, error) {
	p, ok := e.Position(symbol)
	if !ok {
		return broker.Order{}, fmt.Errorf("close position: %w: %q", ErrNoPosition, symbol)
	}
	side := broker.Sell
	if p.Qty < 0 {
		side = broker.Buy
	}
	return e.CreateMarketOrder(ctx, broker.MarketOrderRequest{Symbol: symbol, Side: side, Qty: p.Abs()})
}

// Restore replaces positions with a persisted set and revalues. Cash is
// whatever the engine was built with.
func (e *Engine) Restore(positions map[string]broker.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.positions = make(map[string]*broker.Position, len(positions))
	for sym, p := range positions {
		if math.Abs(p.Qty) <= qtyEpsilon {
			continue
		}
		p := p
		p.Symbol = sym
		e.positions[sym] = &p
	}
	e.revalueLocked()
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

var _ broker.Broker = (*Engine)(nil)
