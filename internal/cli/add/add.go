// Package add provides the commands that ingest profiling files into a
// run store.
package add

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spot-perf/spot/internal/cli/helpers"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/ingest"
)

// NewAddCmd creates the add command.
func NewAddCmd() *cobra.Command {
	var (
		dbPath          string
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "add FILES...",
		Short: "Add profiling files to a run store",
		Long: `Reads each profiling file (.cali through cali-query, .json natively) and
stores it as one run. Files already in the store, by path or by content,
are skipped.

Prints a JSON report listing inserted, skipped and failed files.

Examples:
  spot add --db runs.sqlite lulesh-*.cali
  spot add --db runs.duckdb --continue results/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			path, err := env.StorePath(dbPath)
			if err != nil {
				return err
			}
			if err := helpers.ValidateStorePath(path); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := env.OpenStore(ctx, path)
			if err != nil {
				return err
			}
			defer spoterrors.DeferClose(env.Logger, st, "failed to close store")

			driver := ingest.NewDriver(env.Reader(), st, env.FS, ingest.Options{
				Workers:         env.Config.Workers,
				ContinueOnError: continueOnError,
			}, env.Logger)

			report, err := driver.Ingest(ctx, args)
			if report != nil {
				if werr := env.WriteJSON(report); werr != nil {
					return werr
				}
			}
			if err != nil {
				return failureError(report, err)
			}
			return nil
		},
	}

	helpers.AddDBFlag(cmd, &dbPath)
	cmd.Flags().BoolVar(&continueOnError, "continue", false, "Keep going after a file fails and list it in the report")

	return cmd
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var (
		dbPath string
		settle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Add profiling files to a run store as they appear in a directory",
		Long: `Adds the profiling files already in DIR, then keeps adding new ones as
they are written. A file is added once it has not changed for the settle
period. Each batch prints one JSON report line. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}

			path, err := env.StorePath(dbPath)
			if err != nil {
				return err
			}
			if err := helpers.ValidateStorePath(path); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			st, err := env.OpenStore(ctx, path)
			if err != nil {
				return err
			}
			defer spoterrors.DeferClose(env.Logger, st, "failed to close store")

			driver := ingest.NewDriver(env.Reader(), st, env.FS, ingest.Options{
				Workers:         env.Config.Workers,
				ContinueOnError: true,
			}, env.Logger)

			env.Logger.Info().Str("dir", args[0]).Str("db", path).Msg("Watching for profiling files")

			err = driver.Watch(ctx, args[0], ingest.WatchOptions{
				Settle: settle,
				OnReport: func(report *ingest.Report) {
					if err := env.WriteJSON(report); err != nil {
						env.Logger.Warn().Err(err).Msg("Failed to write report")
					}
				},
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	helpers.AddDBFlag(cmd, &dbPath)
	cmd.Flags().DurationVar(&settle, "settle", ingest.DefaultSettle, "Time a file must stay unchanged before it is added")

	return cmd
}

// failureError names the failing file in err unless the message already
// does.
func failureError(report *ingest.Report, err error) error {
	if report == nil || len(report.Failed) == 0 {
		return err
	}
	for _, f := range report.Failed {
		if strings.Contains(err.Error(), f.File) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", report.Failed[0].File, err)
}
