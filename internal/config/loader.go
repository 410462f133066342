// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/spot-perf/spot/internal/constants"
	"github.com/spot-perf/spot/internal/safe"
)

// ConfigEnv names the variable that overrides the config file path.
const ConfigEnv = "SPOT_CONFIG"

// Loader handles loading and saving the configuration file.
type Loader struct {
	fs      afero.Fs
	homeDir string
	path    string
	lookup  LookupFunc
}

// NewLoader creates a config loader on fs.
// The config file is resolved in this order:
//  1. SPOT_CONFIG environment variable.
//  2. ~/.spot/config.yaml.
//  3. /tmp/spot-fallback/.spot/config.yaml when there is no home directory.
func NewLoader(fs afero.Fs) *Loader {
	return newLoader(fs, os.LookupEnv, os.UserHomeDir)
}

func newLoader(fs afero.Fs, lookup LookupFunc, home func() (string, error)) *Loader {
	homeDir, err := home()
	if err != nil {
		homeDir = "/tmp/spot-fallback"
	}

	path := filepath.Join(homeDir, constants.DefaultDir, constants.ConfigFile)
	if p, ok := lookup(ConfigEnv); ok && p != "" {
		path = p
	}

	return &Loader{fs: fs, homeDir: homeDir, path: path, lookup: lookup}
}

// Path returns the config file path.
func (l *Loader) Path() string {
	return l.path
}

// Defaults returns the built-in configuration for this loader's home
// directory.
func (l *Loader) Defaults() *Config {
	return DefaultConfig(l.homeDir)
}

// Exists reports whether the config file exists.
func (l *Loader) Exists() (bool, error) {
	return afero.Exists(l.fs, l.path)
}

// Load reads the config file over the defaults and applies environment
// overrides. A missing file yields the defaults. The result is validated.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig(l.homeDir)

	data, err := safe.ReadFile(l.fs, l.path, &safe.ReadOptions{AllowSymlinks: true})
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", l.path, err)
		}
	}

	if err := LoadFromLookup(cfg, l.lookup); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to the config file.
func (l *Loader) Save(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := safe.WriteFile(l.fs, l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
