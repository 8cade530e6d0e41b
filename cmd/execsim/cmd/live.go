package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/account"
	"github.com/rustyeddy/execsim/broker"
	"github.com/rustyeddy/execsim/config"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/live"
	"github.com/rustyeddy/execsim/metrics"
	"github.com/rustyeddy/execsim/pkg/logger"
	"github.com/rustyeddy/execsim/risk"
	"github.com/rustyeddy/execsim/sim"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Trade a signal stream against the simulated broker",
	Long: `Live merges a signal file into a tick file and trades admitted signals
against the simulated broker. Fills arrive after the configured delay and
may be rejected. Every trade and equity update is journaled, and the
account is saved at the end of the session. In continuous mode every batch
is its own session: the account is loaded before and saved after each one.

Examples:
  execsim live --signals data/signals.jsonl --ticks data/ticks.jsonl
  execsim live -c execsim.yaml --continuous --interval 30s --max-iterations 10`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

var (
	liveSignalsPath string
	liveTicksPath   string
	liveContinuous  bool
	liveInterval    time.Duration

	liveMaxIterations int
)

func init() {
	rootCmd.AddCommand(liveCmd)

	liveCmd.Flags().StringVarP(&liveSignalsPath, "signals", "s", "", "path to signal JSONL (required)")
	liveCmd.Flags().StringVarP(&liveTicksPath, "ticks", "t", "", "path to tick JSONL (required)")
	liveCmd.Flags().BoolVar(&liveContinuous, "continuous", false, "reload and replay the files every interval until interrupted")
	liveCmd.Flags().DurationVar(&liveInterval, "interval", time.Minute, "continuous mode: time between batches")
	liveCmd.Flags().IntVar(&liveMaxIterations, "max-iterations", 0, "continuous mode: stop after this many sessions (0 = until interrupted)")

	liveCmd.MarkFlagRequired("signals")
	liveCmd.MarkFlagRequired("ticks")
}

func filterConfig(c config.FilterConfig) live.Config {
	return live.Config{
		MinConfidence:    c.MinConfidence,
		MinEdgeBp:        c.MinEdgeBp,
		Cooldown:         c.Cooldown,
		RiskPct:          c.RiskPct,
		MaxPositionPct:   c.MaxPositionPct,
		AllowShort:       c.AllowShort,
		PollAttempts:     c.PollAttempts,
		PollInterval:     c.PollInterval,
		SnapshotInterval: c.SnapshotInterval,
		PrimarySymbol:    c.PrimarySymbol,
	}
}

// engineBuilder wires a simulated broker and live engine for one session.
// The random source is shared so a seeded run stays reproducible across
// sessions.
func engineBuilder(cfg *config.Config, log zerolog.Logger, j journal.Journal, rec *metrics.Recorder) live.BuildFunc {
	seed := cfg.Broker.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	return func(session *live.Session) (*live.Engine, error) {
		venue := sim.NewEngine(broker.Account{
			ID:         cfg.Account.ID,
			Cash:       session.StartingCash,
			Multiplier: 1,
		}, j,
			sim.WithRand(rng),
			sim.WithFillDelay(cfg.Broker.FillDelay),
			sim.WithRejectRate(cfg.Broker.RejectRate),
			sim.WithMaxSlippageBp(cfg.Broker.MaxSlippageBp),
			sim.WithValuationNoise(cfg.Broker.ValuationNoise),
			sim.WithLogger(logger.Component(log, "broker")),
			sim.WithMetrics(rec),
		)
		if ps := session.Positions(); len(ps) > 0 {
			venue.Restore(ps)
			log.Info().Strs("symbols", session.Prev.Symbols()).Msg("positions restored")
		}

		opts := []live.Option{
			live.WithClock(venue.Clock()),
			live.WithLogger(logger.Component(log, "live")),
			live.WithMetrics(rec),
		}
		if cfg.Exposure.Enabled {
			opts = append(opts, live.WithExposure(risk.NewChecker(cfg.Exposure.Limits, logger.Component(log, "risk"))))
		}
		return live.New(venue, filterConfig(cfg.Filter), opts...), nil
	}
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if liveMaxIterations < 0 {
		return fmt.Errorf("--max-iterations must not be negative")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := account.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open account state: %w", err)
	}
	defer store.Close()

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		metrics.Serve(ctx, cfg.Metrics.Addr, reg, logger.Component(log, "metrics"))
	}

	build := engineBuilder(cfg, log, j, rec)
	src := live.FileSource{SignalsPath: liveSignalsPath, TicksPath: liveTicksPath, Log: log}
	sessionLog := logger.Component(log, "session")

	var engine *live.Engine
	if liveContinuous {
		c := &live.Continuous{
			Store:            store,
			InitialCash:      cfg.Account.InitialCash,
			RestorePositions: cfg.State.RestorePositions,
			Build:            build,
			Source:           src,
			Interval:         liveInterval,
			MaxIterations:    liveMaxIterations,
			Log:              sessionLog,
		}
		n, err := c.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sessions %d\n", n)
		engine = c.Last()
	} else {
		session, err := live.BeginSession(store, cfg.Account.InitialCash, cfg.State.RestorePositions, sessionLog)
		if err != nil {
			return err
		}
		if engine, err = build(session); err != nil {
			return err
		}
		runner := live.NewRunner(engine, session, logger.Component(log, "runner"))
		if err := runOnce(ctx, runner, src); err != nil {
			return err
		}
		// The session is saved even when interrupted.
		if err := runner.Finish(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}
	if engine == nil {
		return nil
	}

	status, err := engine.Status(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(status)
}

func runOnce(ctx context.Context, r *live.Runner, src live.Source) error {
	signals, ticks, err := src.Load(ctx)
	if err != nil {
		return err
	}
	sum, err := r.Run(ctx, signals, ticks)
	if err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Printf("signals %d  ticks %d  executed %d  unprocessed %d\n",
		sum.Signals, sum.Ticks, sum.Executed, sum.Unprocessed)
	for reason, n := range sum.Filtered {
		fmt.Printf("  filtered %-13s %d\n", reason, n)
	}
	return nil
}
