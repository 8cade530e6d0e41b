// Package live drives the simulated broker from a signal stream. Every
// signal passes a per-symbol FLAT/LONG/SHORT state machine and a chain of
// admission filters before an order is submitted.
package live

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/execsim/broker"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/metrics"
	"github.com/rustyeddy/execsim/risk"
)

// Venue is the broker surface the live engine needs: order entry plus the
// simulator hooks for marking and valuation. sim.Engine implements it.
type Venue interface {
	broker.Broker
	SetMarketPrice(symbol string, price float64)
	Advance(ctx context.Context) error
	Revalue() broker.Account
	Snapshot(journal.UpdateType) (journal.EquitySnapshot, error)
	Equity() []journal.EquitySnapshot
}

// Config holds the admission thresholds and fill polling bounds.
type Config struct {
	MinConfidence    float64
	MinEdgeBp        float64
	Cooldown         time.Duration
	RiskPct          float64 // fraction of portfolio value, 0.01 = 1%
	MaxPositionPct   float64
	AllowShort       bool
	PollAttempts     int
	PollInterval     time.Duration
	SnapshotInterval time.Duration
	PrimarySymbol    string // empty accepts every symbol
}

func DefaultConfig() Config {
	return Config{
		MinConfidence:    0.6,
		MinEdgeBp:        3,
		Cooldown:         5 * time.Minute,
		RiskPct:          0.01,
		MaxPositionPct:   0.10,
		PollAttempts:     50,
		PollInterval:     50 * time.Millisecond,
		SnapshotInterval: time.Second,
	}
}

// Engine is the position-aware filter in front of a Venue. It is driven
// from a single loop and is not safe for concurrent use.
type Engine struct {
	cfg      Config
	venue    Venue
	clock    clock.Clock
	log      zerolog.Logger
	metrics  *metrics.Recorder
	exposure risk.ExposureChecker

	started        bool
	state          map[string]broker.PositionState
	lastTrade      map[string]time.Time
	prices         map[string]float64
	lastSnapshot   time.Time
	tradesExecuted int
}

type Option func(*Engine)

// WithClock sets the clock used for cooldowns, polling, and snapshot
// throttling. Share it with the Venue.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithExposure enables the exposure-limit check before submission.
func WithExposure(c risk.ExposureChecker) Option {
	return func(e *Engine) { e.exposure = c }
}

func New(v Venue, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		venue:     v,
		clock:     clock.New(),
		log:       zerolog.Nop(),
		state:     make(map[string]broker.PositionState),
		lastTrade: make(map[string]time.Time),
		prices:    make(map[string]float64),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Start records the INIT snapshot. It runs once; later calls are no-ops.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return nil
	}
	if _, err := e.venue.Snapshot(journal.UpdateInit); err != nil {
		return err
	}
	e.started = true
	acct, _ := e.venue.GetAccount(ctx)
	e.log.Info().
		Float64("cash", acct.Cash).
		Float64("portfolio_value", acct.PortfolioValue).
		Msg("live engine started")
	return nil
}

// OnTick marks the tick's symbol at its close, settles due orders,
// revalues, and records a TICK snapshot at most once per SnapshotInterval.
func (e *Engine) OnTick(ctx context.Context, t market.Tick) error {
	e.prices[t.Symbol] = t.Close
	e.venue.SetMarketPrice(t.Symbol, t.Close)
	if err := e.venue.Advance(ctx); err != nil {
		return err
	}
	e.venue.Revalue()
	e.metrics.Tick(t.Symbol)

	now := e.clock.Now()
	if !e.lastSnapshot.IsZero() && now.Sub(e.lastSnapshot) <= e.cfg.SnapshotInterval {
		return nil
	}
	if _, err := e.venue.Snapshot(journal.UpdateTick); err != nil {
		return err
	}
	e.lastSnapshot = now
	return nil
}

// Price is the last tick close seen for symbol.
func (e *Engine) Price(symbol string) (float64, bool) {
	p, ok := e.prices[symbol]
	return p, ok
}

// State is the cached position state for symbol.
func (e *Engine) State(symbol string) broker.PositionState {
	if s, ok := e.state[symbol]; ok {
		return s
	}
	return broker.Flat
}

func (e *Engine) TradesExecuted() int { return e.tradesExecuted }

// Status is a point-in-time summary of the session.
type Status struct {
	Time            time.Time          `json:"timestamp"`
	Cash            float64            `json:"cash"`
	PortfolioValue  float64            `json:"portfolio_value"`
	BuyingPower     float64            `json:"buying_power"`
	Positions       int                `json:"positions_count"`
	TradesExecuted  int                `json:"trades_executed"`
	UpdatesRecorded int                `json:"updates_recorded"`
	Prices          map[string]float64 `json:"current_prices"`
}

func (e *Engine) Status(ctx context.Context) (Status, error) {
	acct, err := e.venue.GetAccount(ctx)
	if err != nil {
		return Status{}, err
	}
	positions, err := e.venue.Positions(ctx)
	if err != nil {
		return Status{}, err
	}
	prices := make(map[string]float64, len(e.prices))
	for k, v := range e.prices {
		prices[k] = v
	}
	return Status{
		Time:            e.clock.Now(),
		Cash:            acct.Cash,
		PortfolioValue:  acct.PortfolioValue,
		BuyingPower:     acct.BuyingPower,
		Positions:       len(positions),
		TradesExecuted:  e.tradesExecuted,
		UpdatesRecorded: len(e.venue.Equity()),
		Prices:          prices,
	}, nil
}
