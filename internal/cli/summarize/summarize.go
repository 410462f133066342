// Package summarize provides the commands that summarize directories and
// files of profiling data for the web frontend. Every command prints one
// JSON document on stdout.
package summarize

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spot-perf/spot/internal/cli/helpers"
	"github.com/spot-perf/spot/internal/summary"
)

// Commands returns the summary command family.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		NewSummaryCmd(),
		NewToggleChartCmd(),
		NewDurationsCmd(),
		NewHierarchicalCmd(),
		NewTopdownCmd(),
	}
}

// NewSummaryCmd creates the summary command.
func NewSummaryCmd() *cobra.Command {
	var layoutFile, durationKey string

	cmd := &cobra.Command{
		Use:   "summary DIR",
		Short: "Summarize every .cali file of a directory",
		Long: `Prints {"data": {file: globals}, "layout": {...}} for the .cali files of DIR.

Per-file results are cached in DIR/spot_cache.db, so only new files are
read. The layout is generated from the first run unless --layout names a
JSON layout file. Charts hidden with toggle-chart are left out.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			dir := filepath.Clean(args[0])
			result, err := env.Summarizer(durationKey).Summarize(cmd.Context(), summary.Request{
				Dir:        dir,
				LayoutFile: layoutFile,
				Hidden:     env.Settings().Hidden(dir),
			})
			if err != nil {
				return err
			}
			return env.WriteJSON(result)
		},
	}

	cmd.Flags().StringVar(&layoutFile, "layout", "", "JSON layout file to use instead of a generated one")
	helpers.AddDurationKeyFlag(cmd, &durationKey)

	return cmd
}

// NewToggleChartCmd creates the toggle-chart command.
func NewToggleChartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-chart DIR CHART true|false",
		Short: "Show or hide a summary chart for a directory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			show, err := helpers.ParseBool(args[2])
			if err != nil {
				return err
			}

			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			svc := env.Settings()
			if err := svc.Toggle(filepath.Clean(args[0]), args[1], show); err != nil {
				return err
			}
			_, err = fmt.Fprintln(env.Stdout, svc.Path())
			return err
		},
	}
}

// NewDurationsCmd creates the durations command.
func NewDurationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "durations KEY FILE",
		Short: "Print the largest KEY value of each function in FILE",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			durations, err := env.Summarizer(args[0]).Durations(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			return env.WriteJSON(durations)
		},
	}
}

// NewHierarchicalCmd creates the hierarchical command.
func NewHierarchicalCmd() *cobra.Command {
	var filenames []string

	cmd := &cobra.Command{
		Use:   "hierarchical DIR KEY",
		Short: "Print globals and per-function KEY durations of many runs",
		Long: `Prints [{"meta": globals, "data": {function: duration}}] with one entry per
file, in the order given. meta carries the run's largest duration as
"Inclusive Duration". Without --filenames every .cali file of DIR is used.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			entries, err := env.Summarizer(args[1]).Hierarchical(cmd.Context(), args[0], filenames)
			if err != nil {
				return err
			}
			return env.WriteJSON(entries)
		},
	}

	cmd.Flags().StringSliceVar(&filenames, "filenames", nil, "Files of DIR to include, in output order")

	return cmd
}

// NewTopdownCmd creates the topdown command.
func NewTopdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topdown FILE",
		Short: "Print the topdown counters of each function in FILE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			topdown, err := env.Summarizer("").Topdown(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return env.WriteJSON(topdown)
		},
	}
}
