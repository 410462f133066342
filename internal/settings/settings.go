// Package settings persists per-user chart visibility preferences.
//
// The settings file maps a data directory to the chart dimensions hidden
// for it. Updates are read-modify-write without locking; concurrent
// writers can lose updates, which is acceptable for single-user
// preferences. A missing or corrupt file reads as empty settings.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/spot-perf/spot/internal/safe"
)

// Settings is the content of a settings file.
type Settings struct {
	Directories map[string]*Directory `yaml:"directories"`
}

// Directory holds the preferences of one data directory.
type Directory struct {
	Hide []string `yaml:"hide"`
}

// Service loads and saves a settings file.
type Service struct {
	fs     afero.Fs
	path   string
	logger zerolog.Logger
}

// NewService creates a Service for the settings file at path.
func NewService(fs afero.Fs, path string, logger zerolog.Logger) *Service {
	return &Service{
		fs:     fs,
		path:   path,
		logger: logger.With().Str("component", "settings").Logger(),
	}
}

// Path returns the settings file path.
func (s *Service) Path() string {
	return s.path
}

// Load reads the settings file. Missing or undecodable files yield empty
// settings.
func (s *Service) Load() *Settings {
	settings := &Settings{Directories: map[string]*Directory{}}

	data, err := safe.ReadFile(s.fs, s.path, &safe.ReadOptions{AllowSymlinks: true})
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to read settings, using defaults")
		}
		return settings
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Settings file is corrupt, using defaults")
		return &Settings{Directories: map[string]*Directory{}}
	}
	if settings.Directories == nil {
		settings.Directories = map[string]*Directory{}
	}
	return settings
}

// Save writes settings to the settings file, creating its directory.
func (s *Service) Save(settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := safe.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// Hidden returns the hidden dimensions of dir.
func (s *Service) Hidden(dir string) []string {
	d, ok := s.Load().Directories[dir]
	if !ok || d == nil {
		return nil
	}
	return d.Hide
}

// Toggle shows or hides chart for dir and saves the settings.
func (s *Service) Toggle(dir, chart string, show bool) error {
	settings := s.Load()

	d := settings.Directories[dir]
	if d == nil {
		d = &Directory{}
		settings.Directories[dir] = d
	}

	if show {
		d.Hide = slices.DeleteFunc(d.Hide, func(name string) bool { return name == chart })
	} else if !slices.Contains(d.Hide, chart) {
		d.Hide = append(d.Hide, chart)
	}

	return s.Save(settings)
}
