package config

import (
	"path/filepath"
	"time"

	"github.com/spot-perf/spot/internal/constants"
	"github.com/spot-perf/spot/internal/logging"
	"github.com/spot-perf/spot/internal/retry"
)

// DefaultConfig returns the configuration used when no file exists.
// Per-user files are placed under homeDir.
func DefaultConfig(homeDir string) *Config {
	return &Config{
		Tool: ToolConfig{
			Path:           constants.DefaultToolPath,
			Timeout:        constants.DefaultToolTimeout,
			MaxRetries:     constants.DefaultToolRetries,
			InitialBackoff: constants.DefaultToolBackoff,
		},
		Store: StoreConfig{
			Driver: constants.DefaultStoreDriver,
		},
		Logging: logging.Config{
			Level: "warn",
		},
		Workers:      constants.DefaultWorkers,
		DurationKey:  constants.DefaultDurationKey,
		SettingsPath: filepath.Join(homeDir, constants.DefaultDir, constants.SettingsFile),
	}
}

// Retry returns the retry policy for tool invocations.
func (t ToolConfig) Retry() retry.Config {
	return retry.Config{
		MaxRetries:     t.MaxRetries,
		InitialBackoff: t.InitialBackoff,
		MaxBackoff:     10 * time.Second,
		Jitter:         true,
	}
}
