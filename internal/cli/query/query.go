// Package query provides the commands that read runs back from a run store
// or a directory of profiling files.
package query

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spot-perf/spot/internal/cli/helpers"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	runquery "github.com/spot-perf/spot/internal/query"
)

// source selects the backend of a query command.
type source struct {
	db  string
	dir string
}

func (s *source) addFlags(cmd *cobra.Command) {
	helpers.AddDBFlag(cmd, &s.db)
	cmd.Flags().StringVar(&s.dir, "dir", "", "Directory of profiling files to query instead of a database")
	cmd.MarkFlagsMutuallyExclusive("db", "dir")
}

// open returns the query service over the selected backend and a function
// releasing it. With preload, a directory backend reads all of its files
// up front.
func (s *source) open(ctx context.Context, env *helpers.Env, preload bool) (*runquery.Service, func(), error) {
	if s.dir != "" {
		st, err := env.OpenDirStore(s.dir)
		if err != nil {
			return nil, nil, err
		}
		if preload {
			if err := st.Load(ctx); err != nil {
				return nil, nil, err
			}
		}
		return runquery.NewService(st, env.Logger), func() {}, nil
	}

	path, err := env.StorePath(s.db)
	if err != nil {
		return nil, nil, err
	}
	st, err := env.OpenStore(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	release := func() { spoterrors.DeferClose(env.Logger, st, "failed to close store") }
	return runquery.NewService(st, env.Logger), release, nil
}

// NewQueryCmd creates the query command group.
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read runs from a run store or a directory",
		Long: `Reads runs back from a database written by "spot add" (--db) or directly
from a directory of profiling files (--dir). Results are JSON on stdout.`,
	}

	cmd.AddCommand(newRunsCmd())
	cmd.AddCommand(newGlobalsCmd())
	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newChannelCmd())
	cmd.AddCommand(newMetadataCmd())
	cmd.AddCommand(newSQLCmd())

	return cmd
}

// runRow is one line of the table and csv forms of "query runs".
type runRow struct {
	Run        profile.RunID `header:"RUN"`
	LaunchDate any           `header:"LAUNCHDATE"`
	Regions    int           `header:"REGIONS"`
	Timeseries bool          `header:"TIMESERIES"`
}

func newRunsCmd() *cobra.Command {
	var (
		src    source
		times  helpers.TimeFlags
		after  string
		keys   []string
		where  string
		format string
	)

	supported := []helpers.OutputFormat{helpers.FormatJSON, helpers.FormatTable, helpers.FormatCSV}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Print the globals and region profile of runs",
		Long: `Prints {"runs": {run_id: {"Globals": {...}, "Data": {path: metrics}}}}.

Runs are selected by launch time (--since, --until) or, for databases, by
insertion order (--after RUN_ID, which also prints the new last_run_id).
--where filters on globals with an expression.

Examples:
  spot query runs --db runs.sqlite --since 168h
  spot query runs --db runs.sqlite --after 42
  spot query runs --dir results --where 'cluster == "quartz" && jobsize >= 64'
  spot query runs --db runs.duckdb --keys cluster,jobsize -o table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}
			bounds, err := times.Parse()
			if err != nil {
				return err
			}

			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}
			svc, release, err := src.open(cmd.Context(), env, false)
			if err != nil {
				return err
			}
			defer release()

			result, err := svc.RunData(cmd.Context(), runquery.Filter{
				Since:      bounds.Since,
				Until:      bounds.Until,
				AfterRunID: profile.RunID(after),
				Keys:       keys,
				Where:      where,
			})
			if err != nil {
				return err
			}

			if format == string(helpers.FormatJSON) {
				return env.WriteJSON(result)
			}
			return writeRows(env.Stdout, helpers.OutputFormat(format), result)
		},
	}

	src.addFlags(cmd)
	times.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&after, "after", "", "Only runs stored after this run id (databases only)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "Only return these globals")
	cmd.Flags().StringVar(&where, "where", "", "Filter expression over run globals")
	helpers.AddFormatFlag(cmd, &format, helpers.FormatJSON, supported)

	return cmd
}

func writeRows(w io.Writer, format helpers.OutputFormat, result *runquery.Result) error {
	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}

	rows := make([]runRow, 0, len(result.Runs))
	for id, view := range result.Runs {
		_, hasTimeseries := view.Globals["timeseries"]
		rows = append(rows, runRow{
			Run:        id,
			LaunchDate: view.Globals["launchdate"],
			Regions:    len(view.Data),
			Timeseries: hasTimeseries,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return profile.CompareRunIDs(rows[i].Run, rows[j].Run) < 0 })

	return formatter.Format(rows, w)
}

func newGlobalsCmd() *cobra.Command {
	var src source

	cmd := &cobra.Command{
		Use:   "globals KEY...",
		Short: "Print the values of global attributes per run",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}
			svc, release, err := src.open(cmd.Context(), env, false)
			if err != nil {
				return err
			}
			defer release()

			values, err := svc.GlobalValues(cmd.Context(), args)
			if err != nil {
				return err
			}
			return env.WriteJSON(values)
		},
	}

	src.addFlags(cmd)
	return cmd
}

func newProfileCmd() *cobra.Command {
	var src source

	cmd := &cobra.Command{
		Use:   "profile RUN_ID",
		Short: "Print the region profile of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}
			svc, release, err := src.open(cmd.Context(), env, false)
			if err != nil {
				return err
			}
			defer release()

			regions, err := svc.Profile(cmd.Context(), profile.RunID(args[0]))
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			return env.WriteJSON(regions)
		},
	}

	src.addFlags(cmd)
	return cmd
}

func newChannelCmd() *cobra.Command {
	var src source

	cmd := &cobra.Command{
		Use:   "channel CHANNEL RUN_ID...",
		Short: "Print the records of a channel (e.g. timeseries) per run",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}
			svc, release, err := src.open(cmd.Context(), env, false)
			if err != nil {
				return err
			}
			defer release()

			ids := make([]profile.RunID, 0, len(args)-1)
			for _, arg := range args[1:] {
				ids = append(ids, profile.RunID(arg))
			}

			records, err := svc.ChannelData(cmd.Context(), args[0], ids)
			if err != nil {
				return err
			}
			return env.WriteJSON(records)
		},
	}

	src.addFlags(cmd)
	return cmd
}

func newMetadataCmd() *cobra.Command {
	var src source

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Print the global and metric attribute descriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}
			svc, release, err := src.open(cmd.Context(), env, true)
			if err != nil {
				return err
			}
			defer release()

			metadata, err := svc.Metadata(cmd.Context())
			if err != nil {
				return err
			}
			return env.WriteJSON(metadata)
		},
	}

	src.addFlags(cmd)
	return cmd
}
