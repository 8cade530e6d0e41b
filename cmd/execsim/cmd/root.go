package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/config"
	"github.com/rustyeddy/execsim/journal"
	"github.com/rustyeddy/execsim/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "execsim",
	Short: "Execution, cost, and ledger simulator for trading strategies",
	Long: `Execsim simulates order execution, transaction costs, and position and
equity accounting for a trading strategy.

It provides:
  - Backtests against historical ticks: mark-to-market, tick-indexed with
    order book and volume-aware fills, and walk-forward windows
  - A live loop that filters signals through a position state machine and
    trades against a simulated broker with fill delays and rejections
  - Durable trade and equity journals (JSONL, CSV, SQLite)
  - Account persistence between live sessions`,
	SilenceUsage: true,
}

var (
	cfgFile  string
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", ".env file with EXECSIM_* overrides (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (trace, debug, info, warn, error)")
}

// loadConfig resolves the config and builds the root logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadWithEnv(cfgFile, envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}

func openJournal(c config.JournalConfig) (journal.Journal, error) {
	switch c.Type {
	case "jsonl":
		return journal.NewJSONL(c.TradesFile, c.EquityFile)
	case "csv":
		return journal.NewCSV(c.TradesFile, c.EquityFile)
	case "sqlite":
		return journal.NewSQLite(c.DBPath)
	}
	return nil, fmt.Errorf("unknown journal type %q", c.Type)
}
