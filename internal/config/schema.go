package config

import (
	"time"

	"github.com/spot-perf/spot/internal/logging"
)

// Config is the spot configuration file.
type Config struct {
	Tool    ToolConfig     `yaml:"tool"`
	Store   StoreConfig    `yaml:"store"`
	Logging logging.Config `yaml:"logging"`

	// Workers bounds concurrent tool invocations and file reads.
	Workers int `yaml:"workers" env:"SPOT_WORKERS"`

	// DurationKey is the inclusive duration metric used by summaries.
	DurationKey string `yaml:"duration_key" env:"SPOT_DURATION_KEY"`

	// SettingsPath is the chart visibility settings file.
	SettingsPath string `yaml:"settings_path" env:"SPOT_SETTINGS"`
}

// ToolConfig configures the external profiling query tool.
type ToolConfig struct {
	Path string `yaml:"path" env:"SPOT_CALI_QUERY"`

	// Timeout bounds one invocation. Zero disables the bound.
	Timeout time.Duration `yaml:"timeout" env:"SPOT_TOOL_TIMEOUT"`

	// MaxRetries is the number of attempts for a failing invocation.
	MaxRetries int `yaml:"max_retries" env:"SPOT_TOOL_RETRIES"`

	InitialBackoff time.Duration `yaml:"initial_backoff"`
}

// StoreConfig selects the run store.
type StoreConfig struct {
	// Driver is the SQL engine: duckdb or sqlite.
	Driver string `yaml:"driver" env:"SPOT_DB_DRIVER"`
	// Path is the database file. Commands that need a store take it from
	// here when no --db flag is given.
	Path string `yaml:"path" env:"SPOT_DB"`
}
