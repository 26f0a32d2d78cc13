// Command edda is the decision-memory layer for coding agents: a
// hash-chained event ledger, multi-session coordination plane, and hook
// bridge that keeps a host agent's context pack fed from prior sessions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/edda/internal/config"
	"github.com/untoldecay/edda/internal/debug"
)

// Version is the CLI's own semver; `edda doctor` reports whether it is a
// valid semantic version.
const Version = "v0.3.0"

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "edda",
	Short: "Decision memory for coding agents",
	Long: `edda records the decisions an agent makes while working in a repo,
coordinates multiple concurrent agent sessions over the same workspace, and
feeds a condensed context pack back into the host agent via hook events.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("edda: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")
}

func main() {
	debug.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "edda:", err)
		os.Exit(1)
	}
}
