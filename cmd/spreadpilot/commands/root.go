package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "spreadpilot",
	Short: "Automated vertical spread trader",
	Long: `SpreadPilot - automated debit vertical spread trader

Scans a large-cap universe for pullback and base patterns once a day,
builds defined-risk vertical spreads from the option chain and manages
exits with ATR stops, profit targets and trailing stops.

Usage:
  spreadpilot [command]

Examples:
  spreadpilot run
  spreadpilot scan
  spreadpilot universe list
  spreadpilot status`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML file (defaults apply when omitted)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
