package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/execsim/account"
)

// BuildFunc constructs a fresh engine for one session, seeded from the
// session's starting cash and restored positions.
type BuildFunc func(s *Session) (*Engine, error)

// Continuous runs one account session per batch: each iteration loads the
// saved account, builds an engine, replays a batch from Source, and saves
// the account before waiting for the next one.
type Continuous struct {
	Store            account.Store
	InitialCash      float64
	RestorePositions bool
	Build            BuildFunc
	Source           Source
	Interval         time.Duration
	MaxIterations    int // 0 runs until canceled
	Clock            clock.Clock
	Log              zerolog.Logger

	last *Engine
}

// Last is the engine of the most recent iteration, nil before the first.
func (c *Continuous) Last() *Engine { return c.last }

// Run loops until ctx is canceled or MaxIterations batches have run, and
// returns the number of iterations. A batch interrupted by cancellation
// still saves its session. The wait between batches checks ctx once per
// second.
func (c *Continuous) Run(ctx context.Context) (int, error) {
	clk := c.Clock
	if clk == nil {
		clk = clock.New()
	}

	iterations := 0
	for {
		if ctx.Err() != nil {
			return iterations, nil
		}
		iterations++
		canceled, err := c.iterate(ctx, iterations)
		if err != nil {
			return iterations, fmt.Errorf("iteration %d: %w", iterations, err)
		}
		if canceled {
			return iterations, nil
		}
		if c.MaxIterations > 0 && iterations >= c.MaxIterations {
			c.Log.Info().Int("iterations", iterations).Msg("max iterations reached")
			return iterations, nil
		}

		deadline := clk.Now().Add(c.Interval)
		for {
			remaining := deadline.Sub(clk.Now())
			if remaining <= 0 {
				break
			}
			select {
			case <-ctx.Done():
				return iterations, nil
			case <-clk.After(min(remaining, time.Second)):
			}
		}
	}
}

func (c *Continuous) iterate(ctx context.Context, n int) (canceled bool, err error) {
	session, err := BeginSession(c.Store, c.InitialCash, c.RestorePositions, c.Log)
	if err != nil {
		return false, err
	}
	e, err := c.Build(session)
	if err != nil {
		return false, err
	}
	c.last = e

	signals, ticks, err := c.Source.Load(ctx)
	if err != nil {
		return false, err
	}

	r := NewRunner(e, session, c.Log)
	sum, err := r.Run(ctx, signals, ticks)
	canceled = errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	if err != nil && !canceled {
		return false, err
	}
	if err := r.Finish(context.WithoutCancel(ctx)); err != nil {
		return canceled, err
	}

	c.Log.Info().
		Int("iteration", n).
		Int("executed", sum.Executed).
		Bool("interrupted", canceled).
		Msg("session complete")
	return canceled, nil
}
