// Package cli implements the hiccup command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "hiccup",
	Short:   "Pause-corrected latency recording demo",
	Version: version,
	Long: `Hiccup records operation latencies into pause-corrected HDR histograms.

A consensus pause detector watches for process-wide stalls and the recorder
back-fills the latencies those stalls swallowed, so reported tail percentiles
survive coordinated omission. Stall the process (^Z, wait, fg) during a run
and watch the corrected column diverge from the recorded one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is provided, print help
		return cmd.Help()
	},
}

// Execute runs the root command with the subcommands registered in init.
// Called once from main.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.AddCommand(runCmd)
}
