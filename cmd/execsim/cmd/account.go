package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/execsim/account"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect or reset the saved account state",
	Long: `Account reads and resets the state carried between live sessions.

Examples:
  execsim account show
  execsim account reset --initial-cash 250000`,
}

var accountShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved account state",
	Args:  cobra.NoArgs,
	RunE:  runAccountShow,
}

var accountResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace the saved state with a fresh account",
	Args:  cobra.NoArgs,
	RunE:  runAccountReset,
}

var resetCash float64

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountResetCmd)

	accountResetCmd.Flags().Float64Var(&resetCash, "initial-cash", 0, "starting cash (default from config)")
}

func openStore() (account.Store, float64, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, 0, err
	}
	s, err := account.Open(cfg.State.Backend, cfg.State.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("open account state: %w", err)
	}
	return s, cfg.Account.InitialCash, nil
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Load()
	if err != nil {
		return err
	}
	if st == nil {
		fmt.Println("no saved account state")
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func runAccountReset(cmd *cobra.Command, args []string) error {
	s, cash, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if cmd.Flags().Changed("initial-cash") {
		cash = resetCash
	}
	if cash <= 0 {
		return fmt.Errorf("initial cash must be positive, got %g", cash)
	}
	if err := s.Reset(cash); err != nil {
		return err
	}
	fmt.Printf("account reset with %.2f cash\n", cash)
	return nil
}
