package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/backtest"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/market"
	"github.com/rustyeddy/execsim/pkg/id"
	"github.com/rustyeddy/execsim/pkg/logger"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay signals against historical ticks through the cost model",
	Long: `Backtest replays a signal file against a tick file using the configured
slippage and commission model.

Modes:
  mtm          - mark-to-market ledger, one step per signal
  ticks        - tick-indexed execution with order book depth and volume caps
  walkforward  - mtm over independent contiguous windows

Examples:
  execsim backtest mtm --signals data/signals.jsonl --ticks data/ticks.jsonl
  execsim backtest walkforward --signals data/signals.jsonl --windows 4 --report run.org`,
}

var backtestMTMCmd = &cobra.Command{
	Use:   "mtm",
	Short: "Mark-to-market backtest",
	Args:  cobra.NoArgs,
	RunE:  runBacktestMTM,
}

var backtestTicksCmd = &cobra.Command{
	Use:   "ticks",
	Short: "Tick-indexed backtest with partial fills",
	Args:  cobra.NoArgs,
	RunE:  runBacktestTicks,
}

var backtestWalkCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Walk-forward backtest over independent windows",
	Args:  cobra.NoArgs,
	RunE:  runBacktestWalk,
}

var (
	btSignalsPath string
	btTicksPath   string
	btWindows     int
	btReportPath  string
	btJSON        bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestMTMCmd)
	backtestCmd.AddCommand(backtestTicksCmd)
	backtestCmd.AddCommand(backtestWalkCmd)

	backtestCmd.PersistentFlags().StringVarP(&btSignalsPath, "signals", "s", "", "path to signal JSONL (required)")
	backtestCmd.PersistentFlags().StringVarP(&btTicksPath, "ticks", "t", "", "path to tick JSONL; without it signals carry their own prices")
	backtestCmd.PersistentFlags().StringVar(&btReportPath, "report", "", "write an Org-mode run report to this file")
	backtestCmd.PersistentFlags().BoolVar(&btJSON, "json", false, "print per-step results as JSON")
	backtestWalkCmd.Flags().IntVarP(&btWindows, "windows", "w", 4, "number of walk-forward windows")

	backtestCmd.MarkPersistentFlagRequired("signals")
}

type backtestInput struct {
	runner  backtest.Runner
	signals []market.Signal
	ticks   []market.Tick
	report  journal.RunReport
	log     zerolog.Logger
}

func loadBacktest(mode string) (*backtestInput, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log = logger.Component(log, "backtest")

	signals, err := market.ReadSignals(btSignalsPath, log)
	if err != nil {
		return nil, fmt.Errorf("read signals: %w", err)
	}
	var ticks []market.Tick
	if btTicksPath != "" {
		if ticks, err = market.ReadTicks(btTicksPath, log); err != nil {
			return nil, fmt.Errorf("read ticks: %w", err)
		}
	}

	in := &backtestInput{
		runner:  backtest.NewRunner(cfg.Costs, log),
		signals: signals,
		ticks:   ticks,
		log:     log,
		report: journal.RunReport{
			RunID:         id.New(),
			Mode:          mode,
			Dataset:       btSignalsPath,
			SlippageBp:    cfg.Costs.SlippageBp,
			CommissionPct: cfg.Costs.CommissionPct,
			FixedFee:      cfg.Costs.FixedFee,
		},
	}
	if len(signals) > 0 {
		in.report.Symbol = signals[0].Symbol
	}
	return in, nil
}

// finish fills the trade statistics, prints the summary, and writes the
// optional report.
func (in *backtestInput) finish(trades []backtest.TradeResult, steps any) error {
	st := backtest.Stats(trades)
	pnls := backtest.PnLs(trades)
	r := &in.report
	r.Trades = st.Trades
	r.TotalPnL = st.TotalPnL
	r.AvgPnL = st.AvgPnL
	r.WinRate = st.WinRate
	r.AvgSlippage = st.AvgSlippage
	r.MaxDrawdown = backtest.MaxDrawdown(backtest.CumulativePnL(pnls))
	for _, p := range pnls {
		switch {
		case p > 0:
			r.Wins++
		case p < 0:
			r.Losses++
		}
	}

	if btJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(steps); err != nil {
			return err
		}
	}

	fmt.Printf("Run:          %s (%s)\n", r.RunID, r.Mode)
	fmt.Printf("Steps:        %d\n", r.Steps)
	fmt.Printf("Trades:       %d (win rate %.1f%%)\n", r.Trades, r.WinRate*100)
	fmt.Printf("Total PnL:    %.2f\n", r.TotalPnL)
	fmt.Printf("Avg slippage: %.4f\n", r.AvgSlippage)
	fmt.Printf("Max drawdown: %.2f\n", r.MaxDrawdown)
	if r.Steps > 0 {
		fmt.Printf("Final:        cash %.2f position %g mtm %.2f\n", r.FinalCash, r.FinalPosition, r.FinalMTM)
	}

	if btReportPath != "" {
		if err := r.WriteOrg(btReportPath); err != nil {
			return err
		}
		in.log.Info().Str("path", btReportPath).Msg("report written")
	}
	return nil
}

func runBacktestMTM(cmd *cobra.Command, args []string) error {
	in, err := loadBacktest("mtm")
	if err != nil {
		return err
	}
	signals, prices := backtest.Align(in.signals, in.ticks)
	steps := in.runner.RunMTM(signals, prices)

	in.report.Steps = len(steps)
	if n := len(steps); n > 0 {
		last := steps[n-1]
		in.report.FinalCash = last.Cash
		in.report.FinalPosition = last.Position
		in.report.FinalMTM = last.MTM
	}
	return in.finish(in.runner.Run(signals), steps)
}

func runBacktestTicks(cmd *cobra.Command, args []string) error {
	in, err := loadBacktest("ticks")
	if err != nil {
		return err
	}
	if len(in.ticks) == 0 {
		return fmt.Errorf("ticks mode requires --ticks")
	}
	queued, prices := backtest.Queue(in.signals, in.ticks)
	steps, err := in.runner.RunTicks(queued, prices)
	if err != nil {
		return err
	}

	in.report.Steps = len(steps)
	if n := len(steps); n > 0 {
		last := steps[n-1]
		in.report.FinalCash = last.Cash
		in.report.FinalPosition = last.Position
		in.report.FinalMTM = last.Cash + last.Position*prices[len(prices)-1]
	}
	for _, s := range steps {
		if s.RemainingQty > 0 {
			in.report.Notes = append(in.report.Notes,
				fmt.Sprintf("tick %d filled %g, %g unfilled", s.Tick, s.FilledQty, s.RemainingQty))
		}
	}
	return in.finish(backtest.TickTrades(steps), steps)
}

func runBacktestWalk(cmd *cobra.Command, args []string) error {
	in, err := loadBacktest("walkforward")
	if err != nil {
		return err
	}
	if btWindows < 1 {
		return fmt.Errorf("--windows must be at least 1")
	}
	signals, prices := backtest.Align(in.signals, in.ticks)
	windows := backtest.SplitWindows(signals, prices, btWindows)
	results := in.runner.WalkForward(windows)

	in.report.Windows = len(windows)
	var trades []backtest.TradeResult
	for i, w := range windows {
		trades = append(trades, in.runner.Run(w.Signals)...)
		res := results[i]
		in.report.Steps += len(res)
		if n := len(res); n > 0 {
			in.report.FinalMTM += res[n-1].MTM
			in.report.Notes = append(in.report.Notes,
				fmt.Sprintf("window %d: %d steps, final mtm %.2f", i, n, res[n-1].MTM))
		}
	}
	return in.finish(trades, results)
}
