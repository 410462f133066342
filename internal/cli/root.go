// Package cli assembles the spot command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/spot-perf/spot/internal/cli/add"
	configcmd "github.com/spot-perf/spot/internal/cli/config"
	"github.com/spot-perf/spot/internal/cli/helpers"
	"github.com/spot-perf/spot/internal/cli/query"
	"github.com/spot-perf/spot/internal/cli/summarize"
	"github.com/spot-perf/spot/pkg/version"
)

// NewRootCmd creates the spot root command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spot",
		Short: "Spot - store and summarize Caliper performance profiles",
		Long: `Spot collects performance profiling runs and serves them to the Spot web
frontend.

- add / watch: ingest .cali and .json profiles into a DuckDB or SQLite run store
- query: read runs back from a store or straight from a directory
- summary, durations, hierarchical, topdown: JSON views of profiling files
- toggle-chart: show or hide summary charts per directory

Configuration is read from ~/.spot/config.yaml (or $SPOT_CONFIG) and
SPOT_* environment variables. Logs go to stderr, results to stdout.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	helpers.AddGlobalFlags(root)

	root.AddCommand(add.NewAddCmd())
	root.AddCommand(add.NewWatchCmd())
	root.AddCommand(summarize.Commands()...)
	root.AddCommand(query.NewQueryCmd())
	root.AddCommand(configcmd.NewConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Spot version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
