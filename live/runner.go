package live

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/execsim/market"
)

// Summary tallies one batch run.
type Summary struct {
	Signals     int
	Ticks       int
	Executed    int
	Filtered    map[Reason]int
	Unprocessed int // signals stamped after the last tick
}

// Source supplies one batch of signals and ticks.
type Source interface {
	Load(ctx context.Context) ([]market.Signal, []market.Tick, error)
}

// FileSource reads the signal and tick JSONL files on every Load.
type FileSource struct {
	SignalsPath string
	TicksPath   string
	Log         zerolog.Logger
}

func (s FileSource) Load(ctx context.Context) ([]market.Signal, []market.Tick, error) {
	signals, err := market.ReadSignals(s.SignalsPath, s.Log)
	if err != nil {
		return nil, nil, err
	}
	ticks, err := market.ReadTicks(s.TicksPath, s.Log)
	if err != nil {
		return nil, nil, err
	}
	return signals, ticks, nil
}

// Runner merges a signal stream into a tick stream and feeds the Engine.
type Runner struct {
	Engine  *Engine
	Session *Session // optional; saved by Finish
	Log     zerolog.Logger
}

func NewRunner(e *Engine, s *Session, log zerolog.Logger) *Runner {
	return &Runner{Engine: e, Session: s, Log: log}
}

// Run replays one batch. Both streams are ordered by timestamp; before
// each tick every signal stamped at or before it is processed at the
// tick's close, then the tick marks the book to market. Cancellation is
// checked between ticks. Journal and broker failures abort the run.
func (r *Runner) Run(ctx context.Context, signals []market.Signal, ticks []market.Tick) (Summary, error) {
	sum := Summary{Filtered: make(map[Reason]int)}
	if err := r.Engine.Start(ctx); err != nil {
		return sum, err
	}

	signals = append([]market.Signal(nil), signals...)
	ticks = append([]market.Tick(nil), ticks...)
	market.SortSignals(signals)
	market.SortTicks(ticks)

	next := 0
	for _, t := range ticks {
		if err := ctx.Err(); err != nil {
			sum.Unprocessed = len(signals) - next
			return sum, err
		}

		for next < len(signals) && !signals[next].Timestamp.After(t.Timestamp) {
			sig := signals[next]
			next++
			sum.Signals++

			price := t.Close
			if sig.Symbol != t.Symbol {
				price, _ = r.Engine.Price(sig.Symbol)
			}
			d, err := r.Engine.ProcessSignal(ctx, sig, price)
			if err != nil {
				return sum, err
			}
			if d.Executed {
				sum.Executed++
			} else {
				sum.Filtered[d.Reason]++
			}
		}

		if err := r.Engine.OnTick(ctx, t); err != nil {
			return sum, err
		}
		sum.Ticks++
	}
	sum.Unprocessed = len(signals) - next

	r.Log.Info().
		Int("signals", sum.Signals).
		Int("ticks", sum.Ticks).
		Int("executed", sum.Executed).
		Int("unprocessed", sum.Unprocessed).
		Msg("batch complete")
	return sum, nil
}

// Finish saves the session's account state, if the runner has a session.
func (r *Runner) Finish(ctx context.Context) error {
	if r.Session == nil {
		return nil
	}
	return r.Session.End(ctx, r.Engine)
}
