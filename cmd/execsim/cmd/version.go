package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  `Display the current version of the execsim CLI.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("execsim version %s\n", version)
		fmt.Println("Execution, cost, and ledger simulator")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
