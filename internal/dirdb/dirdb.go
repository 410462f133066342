// Package dirdb serves runs straight from a directory of profiling files.
//
// Every profiling file below the directory is one run, identified by its
// absolute path. Files are read on first access and memoized for the life
// of the Store. The attribute schema grows lazily as files are read, so
// attribute views only describe files that were read at least once.
//
// ListRunsSince compares file modification times with the bound. That
// reflects filesystem metadata, not the logical launch time of a run:
// copying or touching a file makes it new again. Files that turn out not
// to be Spot data are logged and left out of later listings.
package dirdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/spot-perf/spot/internal/caliper"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/schema"
)

// Store is a read-only run store over a directory.
type Store struct {
	fs     afero.Fs
	dir    string
	reader caliper.Reader
	logger zerolog.Logger

	mu    sync.Mutex
	cache map[profile.RunID]*profile.Run
	// invalid holds files that were read and turned out not to be Spot
	// data. They are left out of listings.
	invalid  map[profile.RunID]struct{}
	registry *schema.Registry
}

// New creates a Store over dir on fsys. Files are read through reader.
func New(fsys afero.Fs, dir string, reader caliper.Reader, logger zerolog.Logger) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := fsys.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open directory %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}

	return &Store{
		fs:       fsys,
		dir:      abs,
		reader:   reader,
		logger:   logger.With().Str("component", "dirdb").Str("dir", abs).Logger(),
		cache:    make(map[profile.RunID]*profile.Run),
		invalid:  make(map[profile.RunID]struct{}),
		registry: schema.NewRegistry(),
	}, nil
}

// isInvalid reports whether id was read before and is not Spot data.
func (s *Store) isInvalid(id profile.RunID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.invalid[id]
	return ok
}

// Dir returns the absolute directory path.
func (s *Store) Dir() string {
	return s.dir
}

// ListRunsSince returns the profiling files modified after minTimestamp
// (unix seconds), in lexical path order.
func (s *Store) ListRunsSince(_ context.Context, minTimestamp int64) ([]profile.RunID, error) {
	ids := []profile.RunID{}
	err := afero.Walk(s.fs, s.dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !caliper.IsProfile(path) {
			return nil
		}
		if s.isInvalid(profile.RunID(path)) {
			return nil
		}
		if info.ModTime().Unix() > minTimestamp {
			ids = append(ids, profile.RunID(path))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", s.dir, err)
	}
	return ids, nil
}

// ListRunsAfter is not supported: directory runs have no insertion order.
func (s *Store) ListRunsAfter(context.Context, profile.RunID) ([]profile.RunID, error) {
	return nil, fmt.Errorf("directory store has no run sequence: %w", spoterrors.ErrNotSupported)
}

// HasSource reports whether file is a profiling file of the directory.
func (s *Store) HasSource(_ context.Context, file string) (bool, error) {
	abs, err := filepath.Abs(file)
	if err != nil || !s.contains(abs) || !caliper.IsProfile(abs) {
		return false, nil
	}
	return afero.Exists(s.fs, abs)
}

// contains reports whether path is an absolute path below the directory.
func (s *Store) contains(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(s.dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Run returns the run read from the file id, reading it on first access.
func (s *Store) Run(ctx context.Context, id profile.RunID) (*profile.Run, error) {
	s.mu.Lock()
	run, ok := s.cache[id]
	s.mu.Unlock()
	if ok {
		return run, nil
	}

	path := string(id)
	if !s.contains(path) {
		return nil, fmt.Errorf("run %s: %w", id, spoterrors.ErrNotFound)
	}
	if exists, _ := afero.Exists(s.fs, path); !exists {
		return nil, fmt.Errorf("run %s: %w", id, spoterrors.ErrNotFound)
	}

	doc, err := s.reader.Read(ctx, path)
	if errors.Is(err, spoterrors.ErrFormat) {
		s.mu.Lock()
		s.invalid[id] = struct{}{}
		s.mu.Unlock()
		s.logger.Warn().Err(err).Str("file", path).Msg("Ignoring file that is not Spot data")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	launch, err := doc.LaunchDate()
	if err != nil {
		return nil, err
	}
	plan, err := s.registry.Plan(doc)
	if err != nil {
		return nil, err
	}
	s.registry.Commit(plan)

	run = &profile.Run{
		ID:         id,
		LaunchDate: launch,
		Globals:    plan.RunGlobals(doc),
		Records:    doc.Records,
		SourceFile: path,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[id]; ok {
		return cached, nil
	}
	s.cache[id] = run

	s.logger.Debug().
		Str("file", path).
		Int("records", len(run.Records)).
		Msg("Run loaded")
	return run, nil
}

// Globals returns the globals of a run.
func (s *Store) Globals(ctx context.Context, id profile.RunID) (map[string]any, error) {
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.Globals, nil
}

// RegionProfile returns the region profile of a run keyed by path.
func (s *Store) RegionProfile(ctx context.Context, id profile.RunID) (map[string]map[string]any, error) {
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.RegionProfile(), nil
}

// ChannelRecords returns the records of one channel of a run.
func (s *Store) ChannelRecords(ctx context.Context, id profile.RunID, channel string) ([]map[string]any, error) {
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.ChannelRecords(channel), nil
}

// GlobalValuesForKeys reads every run of the directory and returns the
// values of keys per run. Files that cannot be read are skipped with a
// warning, as are keys a run does not have.
func (s *Store) GlobalValuesForKeys(ctx context.Context, keys []string) (map[profile.RunID]map[string]any, error) {
	result := make(map[profile.RunID]map[string]any)
	if len(keys) == 0 {
		return result, nil
	}

	ids, err := s.ListRunsSince(ctx, -1)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		run, err := s.Run(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("file", string(id)).Msg("Skipping unreadable profiling file")
			continue
		}

		for _, key := range keys {
			if profile.IsReserved(key) {
				continue
			}
			v, ok := run.Globals[key]
			if !ok {
				continue
			}
			if result[id] == nil {
				result[id] = make(map[string]any)
			}
			result[id][key] = v
		}
	}
	return result, nil
}

// Load reads every run of the directory so that the attribute
// descriptions cover all of them. Unreadable files are skipped with a
// warning.
func (s *Store) Load(ctx context.Context) error {
	ids, err := s.ListRunsSince(ctx, -1)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := s.Run(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Str("file", string(id)).Msg("Skipping unreadable profiling file")
		}
	}
	return nil
}

// GlobalAttributes describes the global attributes of the files read so far.
func (s *Store) GlobalAttributes(context.Context) (map[string]profile.AttributeInfo, error) {
	return s.registry.Info(profile.KindGlobal), nil
}

// MetricAttributes describes the metric attributes of the files read so far.
func (s *Store) MetricAttributes(context.Context) (map[string]profile.AttributeInfo, error) {
	return s.registry.Info(profile.KindMetric), nil
}

// Registry returns the lazily grown attribute registry.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}
