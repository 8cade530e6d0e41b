package sim

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/execsim/metrics"
	"github.com/rustyeddy/execsim/pkg/id"
)

const (
	DefaultFillDelay      = 2 * time.Second
	DefaultRejectRate     = 0.05
	DefaultMaxSlippageBp  = 2.0
	DefaultValuationNoise = 0.005
)

type Option func(*Engine)

// WithFillDelay sets how long an order stays pending before settling.
func WithFillDelay(d time.Duration) Option {
	return func(e *Engine) { e.fillDelay = d }
}

// WithRejectRate sets the probability a due order is rejected.
func WithRejectRate(p float64) Option {
	return func(e *Engine) { e.rejectRate = p }
}

// WithMaxSlippageBp bounds the adverse fill slippage in basis points.
func WithMaxSlippageBp(bp float64) Option {
	return func(e *Engine) { e.maxSlippageBp = bp }
}

// WithValuationNoise sets the half-width of the uniform noise applied to
// mark prices on each valuation, as a fraction (0.005 = ±0.5%).
func WithValuationNoise(pct float64) Option {
	return func(e *Engine) { e.noise = pct }
}

// WithRand injects the random source for rejections, slippage, and
// valuation noise. Seed it for reproducible runs.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDs sets the order id generator.
func WithIDs(g *id.Generator) Option {
	return func(e *Engine) { e.ids = g }
}
