package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query trade and equity journals",
	Long: `Query and display journal records.

Subcommands:
  tail    - Print the last lines of a JSONL journal
  repair  - Drop a torn trailing line from a JSONL journal
  trade   - Get details of a specific trade from the SQLite journal
  day     - List trades recorded on a specific day
  equity  - List equity snapshots recorded on a specific day
  count   - Count trades in the SQLite journal, optionally by status

Examples:
  execsim journal tail data/trades.jsonl -n 20
  execsim journal trade 01J9Z8Q0M3V2J6W7X8Y9Z0A1B2
  execsim journal day 2024-01-15 --symbol AAPL`,
}

var journalTailCmd = &cobra.Command{
	Use:   "tail <file>",
	Short: "Print the last lines of a JSONL journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTail,
}

var journalRepairCmd = &cobra.Command{
	Use:   "repair <file>",
	Short: "Truncate a torn trailing line left by a crash",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRepair,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <order-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades recorded on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity <YYYY-MM-DD>",
	Short: "List equity snapshots recorded on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEquity,
}

var journalCountCmd = &cobra.Command{
	Use:   "count [status]",
	Short: "Count trades, optionally with one status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalCount,
}

var (
	journalDBPath string
	journalTailN  int
	journalSymbol string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTailCmd)
	journalCmd.AddCommand(journalRepairCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalEquityCmd)
	journalCmd.AddCommand(journalCountCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "data/journal.db", "path to SQLite journal DB")
	journalTailCmd.Flags().IntVarP(&journalTailN, "lines", "n", 10, "number of lines")
	journalDayCmd.Flags().StringVar(&journalSymbol, "symbol", "", "only trades for this symbol")
}

func runJournalTail(cmd *cobra.Command, args []string) error {
	lines, err := journal.Tail(args[0], journalTailN)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	return nil
}

func runJournalRepair(cmd *cobra.Command, args []string) error {
	repaired, err := journal.Repair(args[0])
	if err != nil {
		return err
	}
	if repaired {
		fmt.Printf("%s: torn trailing line removed\n", args[0])
	} else {
		fmt.Printf("%s: ok\n", args[0])
	}
	return nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Println(journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, end, err := dayBounds(time.Local, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesBetween(journalSymbol, start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	for _, r := range recs {
		fmt.Println(journal.FormatTradeOrg(r))
	}
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, end, err := dayBounds(time.Local, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	snaps, err := j.ListEquityBetween(start, end)
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	fmt.Printf("%-25s %-6s %14s %14s %6s %6s\n", "TIME", "TYPE", "CASH", "VALUE", "POS", "TRADES")
	for _, e := range snaps {
		fmt.Printf("%-25s %-6s %14.2f %14.2f %6d %6d\n",
			e.Time.Format(time.RFC3339), e.UpdateType, e.Cash, e.PortfolioValue, e.Positions, e.TradesExecuted)
	}
	return nil
}

func runJournalCount(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	status := ""
	if len(args) == 1 {
		status = args[0]
	}
	n, err := j.CountTrades(status)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
