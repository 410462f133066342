package helpers

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/spot-perf/spot/internal/caliper"
	"github.com/spot-perf/spot/internal/config"
	"github.com/spot-perf/spot/internal/dirdb"
	"github.com/spot-perf/spot/internal/logging"
	"github.com/spot-perf/spot/internal/settings"
	"github.com/spot-perf/spot/internal/sqldb"
	"github.com/spot-perf/spot/internal/store"
	"github.com/spot-perf/spot/internal/summary"
)

// Persistent flag names shared by every command.
const (
	flagLogLevel = "log-level"
	flagPretty   = "pretty"
	flagWorkers  = "workers"
)

// StoreExtensions are the database file extensions accepted as ingestion
// targets.
var StoreExtensions = []string{".sqlite", ".sqlite3", ".db", ".duckdb"}

// AddGlobalFlags registers the persistent flags on the root command.
func AddGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(flagLogLevel, "", "Log level (trace, debug, info, warn, error)")
	flags.Bool(flagPretty, false, "Human-readable log output on stderr")
	flags.Int(flagWorkers, 0, "Concurrent tool invocations (default from config workers)")
}

// Env is what a command needs to run: the resolved configuration, a logger
// writing to stderr and the filesystem.
type Env struct {
	Config *config.Config
	Logger zerolog.Logger
	FS     afero.Fs
	Stdout io.Writer
}

// NewEnv loads the configuration and applies the persistent flags of cmd
// over it. Flags win over the environment, which wins over the file.
func NewEnv(cmd *cobra.Command) (*Env, error) {
	fs := afero.NewOsFs()

	cfg, err := config.NewLoader(fs).Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed(flagLogLevel) {
		cfg.Logging.Level, _ = flags.GetString(flagLogLevel)
	}
	if flags.Changed(flagPretty) {
		cfg.Logging.Pretty, _ = flags.GetBool(flagPretty)
	}
	if flags.Changed(flagWorkers) {
		workers, _ := flags.GetInt(flagWorkers)
		if workers < 1 {
			return nil, fmt.Errorf("--workers must be at least 1")
		}
		cfg.Workers = workers
	}

	logCfg := cfg.Logging
	logCfg.Output = cmd.ErrOrStderr()

	return &Env{
		Config: cfg,
		Logger: logging.New(logCfg),
		FS:     fs,
		Stdout: cmd.OutOrStdout(),
	}, nil
}

// Reader returns the profiling file reader backed by the configured tool.
func (e *Env) Reader() *caliper.Client {
	runner := caliper.NewExecRunner(e.Config.Tool.Path, e.Config.Tool.Timeout, e.Logger)
	return caliper.NewClient(runner, e.FS, caliper.Options{Retry: e.Config.Tool.Retry()}, e.Logger)
}

// StorePath resolves the database file from the --db flag value or the
// configuration.
func (e *Env) StorePath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = e.Config.Store.Path
	}
	if path == "" {
		return "", fmt.Errorf("no database given: use --db or set store.path")
	}
	return path, nil
}

// OpenStore opens the SQL run store at path. The engine follows the file
// extension and falls back to store.driver.
func (e *Env) OpenStore(ctx context.Context, path string) (*store.Store, error) {
	fallback, err := sqldb.ParseDialect(e.Config.Store.Driver)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, sqldb.DialectForPath(path, fallback), path, e.Logger)
}

// OpenDirStore opens a directory of profiling files as a read-only store.
func (e *Env) OpenDirStore(dir string) (*dirdb.Store, error) {
	return dirdb.New(e.FS, dir, e.Reader(), e.Logger)
}

// Summarizer returns the directory summarizer.
func (e *Env) Summarizer(durationKey string) *summary.Summarizer {
	if durationKey == "" {
		durationKey = e.Config.DurationKey
	}
	return summary.New(e.Reader(), e.FS, summary.Options{
		Workers:     e.Config.Workers,
		DurationKey: durationKey,
	}, e.Logger)
}

// Settings returns the chart visibility settings service.
func (e *Env) Settings() *settings.Service {
	return settings.NewService(e.FS, e.Config.SettingsPath, e.Logger)
}

// WriteJSON writes v to the command output as compact JSON.
func (e *Env) WriteJSON(v interface{}) error {
	return WriteJSON(e.Stdout, v)
}

// ValidateStorePath checks that path names a database file spot can
// create or open for ingestion.
func ValidateStorePath(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range StoreExtensions {
		if ext == e {
			return nil
		}
	}
	return fmt.Errorf("%s: database file must end in one of %s", path, strings.Join(StoreExtensions, ", "))
}
