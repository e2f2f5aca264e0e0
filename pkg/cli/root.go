// Package cli implements the qtune command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Exit codes: 0 the improvement threshold was met, 2 the budget ran out
// without meeting it, 1 baseline or configuration failure.
const (
	ExitThresholdMet    = 0
	ExitError           = 1
	ExitBudgetExhausted = 2
)

// exitCode is set by the optimize command once the session terminates.
var exitCode = 0

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	return exitCode
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "qtune",
		Short:         "LLM-assisted SQL query tuner for DuckDB",
		Long:          "qtune benchmarks a query, asks a reasoning service for rewrites, and keeps only rewrites that measure faster.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newOptimizeCmd())
	return rootCmd
}
