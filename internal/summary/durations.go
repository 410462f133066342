package summary

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/spot-perf/spot/internal/constants"
	"github.com/spot-perf/spot/internal/profile"
)

// Durations returns the largest inclusive duration of each function of a
// profiling file.
func (s *Summarizer) Durations(ctx context.Context, path string) (map[string]float64, error) {
	rows, err := s.tool.FuncDurations(ctx, s.opts.DurationKey, path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		fn, ok := functionName(row)
		if !ok {
			continue
		}
		d := duration(row, s.opts.DurationKey)
		if cur, seen := out[fn]; !seen || d > cur {
			out[fn] = d
		}
	}
	return out, nil
}

// HierarchyEntry is one run of the hierarchical view.
type HierarchyEntry struct {
	Meta map[string]any     `json:"meta"`
	Data map[string]float64 `json:"data"`
}

// Hierarchical returns the globals, inclusive duration and per-function
// durations of each file, in file order. Without filenames every tool
// readable file of dir is used. Any failing file fails the whole view.
func (s *Summarizer) Hierarchical(ctx context.Context, dir string, filenames []string) ([]HierarchyEntry, error) {
	if len(filenames) == 0 {
		var err error
		if filenames, err = s.listFiles(dir); err != nil {
			return nil, err
		}
	}

	paths := make([]string, len(filenames))
	for i, name := range filenames {
		paths[i] = filepath.Join(dir, name)
	}

	mapper := iter.Mapper[string, HierarchyEntry]{MaxGoroutines: s.opts.Workers}
	entries, err := mapper.MapErr(paths, func(path *string) (HierarchyEntry, error) {
		if err := ctx.Err(); err != nil {
			return HierarchyEntry{}, err
		}
		meta, data, err := s.fileSummary(ctx, *path)
		if err != nil {
			return HierarchyEntry{}, fmt.Errorf("%s: %w", *path, err)
		}
		return HierarchyEntry{Meta: meta, Data: data}, nil
	})
	if err != nil {
		return nil, firstError(err)
	}
	return entries, nil
}

// TopdownEntry is the topdown breakdown of one function.
type TopdownEntry struct {
	Duration any            `json:"duration"`
	Topdown  map[string]any `json:"topdown"`
}

// Topdown returns, for each function record of a file, its sample count
// and its topdown counters with the counter prefix removed.
func (s *Summarizer) Topdown(ctx context.Context, path string) (map[string]TopdownEntry, error) {
	rows, err := s.tool.SelectAll(ctx, path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]TopdownEntry)
	for _, row := range rows {
		fn, ok := functionName(row)
		if !ok {
			continue
		}

		counters := make(map[string]any)
		for k, v := range row {
			if name, found := strings.CutPrefix(k, constants.TopdownPrefix); found {
				counters[name] = v
			}
		}
		out[fn] = TopdownEntry{Duration: row["count"], Topdown: counters}
	}
	return out, nil
}

// duration reads key from a function row. Missing or non-numeric values
// count as zero.
func duration(row map[string]any, key string) float64 {
	v, ok := row[key]
	if !ok {
		return 0
	}
	f, err := profile.ToFloat(v)
	if err != nil {
		return 0
	}
	return f
}

func functionName(row map[string]any) (string, bool) {
	v, ok := row["function"]
	if !ok || v == nil {
		return "", false
	}
	return profile.FormatValue(v), true
}

// firstError unwraps the joined errors of a parallel map.
func firstError(err error) error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		if errs := joined.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
	}
	return err
}
