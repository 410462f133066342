// Package summary builds directory level views of profiling files for the
// web frontend: the cached per-file summary with its chart layout,
// per-function durations, the hierarchical multi-run view and topdown
// counter breakdowns.
//
// Every file is an independent external tool invocation, so files are
// processed on a bounded pool of workers.
package summary

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/spot-perf/spot/internal/constants"
)

// ToolExtension is the extension of files the summaries read.
const ToolExtension = ".cali"

// Tool runs the profiling tool queries summaries are built from.
type Tool interface {
	ListGlobals(ctx context.Context, path string) (map[string]any, error)
	FuncDurations(ctx context.Context, durationKey, path string) ([]map[string]any, error)
	SelectAll(ctx context.Context, path string) ([]map[string]any, error)
}

// Options configures a Summarizer.
type Options struct {
	// Workers bounds concurrent tool invocations.
	Workers int
	// DurationKey is the inclusive duration metric of function records.
	DurationKey string
}

// Summarizer builds summaries through a Tool.
type Summarizer struct {
	tool   Tool
	fs     afero.Fs
	opts   Options
	logger zerolog.Logger
}

// New creates a Summarizer. fs is used to list directories and read
// layout files.
func New(tool Tool, fs afero.Fs, opts Options, logger zerolog.Logger) *Summarizer {
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultWorkers
	}
	if opts.DurationKey == "" {
		opts.DurationKey = constants.DefaultDurationKey
	}
	return &Summarizer{
		tool:   tool,
		fs:     fs,
		opts:   opts,
		logger: logger.With().Str("component", "summary").Logger(),
	}
}

// Request selects what Summarize returns.
type Request struct {
	// Dir is the directory of profiling files.
	Dir string
	// LayoutFile, when set, is a JSON layout used instead of a generated one.
	LayoutFile string
	// Hidden lists dimensions left out of the layout.
	Hidden []string
}

// Summary is the result of Summarize.
type Summary struct {
	Data   map[string]map[string]any `json:"data"`
	Layout *Layout                   `json:"layout"`
}

// Summarize returns the cached summary of every profiling file in dir,
// first extracting the files the cache does not know yet. Files that fail
// extraction are logged and left out; they are retried on the next call.
func (s *Summarizer) Summarize(ctx context.Context, req Request) (*Summary, error) {
	cache := OpenCache(filepath.Join(req.Dir, constants.SummaryCacheFile), s.logger)
	defer func() {
		if err := cache.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close summary cache")
		}
	}()

	names, err := s.listFiles(req.Dir)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range names {
		if !cache.Has(name) {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		fresh, err := s.extractAll(ctx, req.Dir, missing)
		if err != nil {
			return nil, err
		}
		cache.Put(fresh)
		s.logger.Debug().
			Int("missing", len(missing)).
			Int("extracted", len(fresh)).
			Msg("Summary cache updated")
	}

	var layout *Layout
	if req.LayoutFile != "" {
		if layout, err = LoadLayout(s.fs, req.LayoutFile); err != nil {
			return nil, err
		}
	} else {
		layout = GenerateLayout(cache.Entries())
	}

	return &Summary{Data: cache.Entries(), Layout: layout.Hide(req.Hidden)}, nil
}

type extraction struct {
	name  string
	entry map[string]any
}

func (s *Summarizer) extractAll(ctx context.Context, dir string, names []string) (map[string]map[string]any, error) {
	p := pool.NewWithResults[extraction]().WithContext(ctx).WithMaxGoroutines(s.opts.Workers)
	for _, name := range names {
		p.Go(func(ctx context.Context) (extraction, error) {
			path := filepath.Join(dir, name)
			meta, _, err := s.fileSummary(ctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return extraction{}, ctx.Err()
				}
				s.logger.Warn().Err(err).Str("file", path).Msg("Skipping file in summary")
				return extraction{name: name}, nil
			}
			return extraction{name: name, entry: meta}, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	fresh := make(map[string]map[string]any, len(results))
	for _, r := range results {
		if r.entry != nil {
			fresh[r.name] = r.entry
		}
	}
	return fresh, nil
}

// fileSummary runs the globals and duration queries of one file once. It
// returns the globals extended with the inclusive duration and the
// per-function durations.
func (s *Summarizer) fileSummary(ctx context.Context, path string) (map[string]any, map[string]float64, error) {
	globals, err := s.tool.ListGlobals(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.tool.FuncDurations(ctx, s.opts.DurationKey, path)
	if err != nil {
		return nil, nil, err
	}

	data := make(map[string]float64, len(rows))
	var inclusive float64
	for _, row := range rows {
		d := duration(row, s.opts.DurationKey)
		if d > inclusive {
			inclusive = d
		}
		if fn, ok := functionName(row); ok {
			data[fn] = d
		}
	}

	globals[constants.InclusiveDurationKey] = inclusive
	return globals, data, nil
}

// listFiles returns the names of the tool readable files directly in dir.
func (s *Summarizer) listFiles(dir string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, info := range infos {
		if !info.IsDir() && strings.HasSuffix(info.Name(), ToolExtension) {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
