// Package query reconstructs run views from a run store.
//
// A Service works against any Backend: the SQL run store or the directory
// store. It selects runs incrementally by launch time or by run id, narrows
// them with a time range, an attribute key set and an optional expression
// over the run globals, and assembles each run's globals with its region
// profile.
package query

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/spot-perf/spot/internal/constants"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
)

// Backend is the query contract shared by run stores.
type Backend interface {
	ListRunsSince(ctx context.Context, minTimestamp int64) ([]profile.RunID, error)
	ListRunsAfter(ctx context.Context, after profile.RunID) ([]profile.RunID, error)
	Run(ctx context.Context, id profile.RunID) (*profile.Run, error)
	GlobalValuesForKeys(ctx context.Context, keys []string) (map[profile.RunID]map[string]any, error)
	RegionProfile(ctx context.Context, id profile.RunID) (map[string]map[string]any, error)
	ChannelRecords(ctx context.Context, id profile.RunID, channel string) ([]map[string]any, error)
	GlobalAttributes(ctx context.Context) (map[string]profile.AttributeInfo, error)
	MetricAttributes(ctx context.Context) (map[string]profile.AttributeInfo, error)
}

// Filter selects runs.
type Filter struct {
	// Since, when non-zero, keeps runs launched after this unix timestamp.
	// Zero selects every run, including runs stored without a launch date.
	Since int64
	// Until, when positive, keeps runs launched at or before it.
	Until int64
	// AfterRunID switches selection to runs stored after this id. Only
	// backends with an insertion sequence support it.
	AfterRunID profile.RunID
	// Keys, when set, restricts the returned globals to these names.
	Keys []string
	// Where is an expression over the run globals that must evaluate to
	// true, e.g. `cluster == "quartz" && jobsize >= 64`. Names that are not
	// identifiers are reachable through the globals map:
	// `globals["spot.format.version"] == "1"`.
	Where string
}

// RunView is one run as returned to clients.
type RunView struct {
	Globals map[string]any            `json:"Globals"`
	Data    map[string]map[string]any `json:"Data"`
}

// Result is the outcome of RunData.
type Result struct {
	Runs map[profile.RunID]*RunView `json:"runs"`
	// LastRunID is the highest run id returned, or the filter's
	// AfterRunID when nothing new was found. Use it as the next
	// AfterRunID to read incrementally.
	LastRunID profile.RunID `json:"last_run_id,omitempty"`
}

// Metadata describes the attributes known to a backend.
type Metadata struct {
	Globals map[string]profile.AttributeInfo `json:"globals"`
	Metrics map[string]profile.AttributeInfo `json:"metrics"`
}

// Service answers run queries against a Backend.
type Service struct {
	backend Backend
	logger  zerolog.Logger
}

// NewService creates a Service.
func NewService(backend Backend, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		logger:  logger.With().Str("component", "query").Logger(),
	}
}

// RunData returns the selected runs keyed by id.
func (s *Service) RunData(ctx context.Context, f Filter) (*Result, error) {
	where, err := compileWhere(f.Where)
	if err != nil {
		return nil, err
	}

	ids, err := s.selectRuns(ctx, f)
	if err != nil {
		return nil, err
	}

	var keyed map[profile.RunID]map[string]any
	if len(f.Keys) > 0 {
		if keyed, err = s.backend.GlobalValuesForKeys(ctx, f.Keys); err != nil {
			return nil, err
		}
	}

	result := &Result{Runs: make(map[profile.RunID]*RunView, len(ids)), LastRunID: f.AfterRunID}
	for _, id := range ids {
		run, err := s.backend.Run(ctx, id)
		if errors.Is(err, spoterrors.ErrFormat) {
			s.logger.Warn().Err(err).Str("run_id", id.String()).Msg("Skipping run that is not Spot data")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", id, err)
		}
		if f.Until > 0 && run.LaunchDate > f.Until {
			continue
		}

		if where != nil {
			ok, err := match(where, run.Globals)
			if err != nil {
				return nil, fmt.Errorf("failed to evaluate filter on run %s: %w", id, err)
			}
			if !ok {
				continue
			}
		}

		globals := run.Globals
		if keyed != nil {
			globals = keyed[id]
			if globals == nil {
				globals = map[string]any{}
			}
		}
		result.Runs[id] = &RunView{Globals: withTimeseriesMarker(globals, run), Data: run.RegionProfile()}
	}

	if len(ids) > 0 && f.AfterRunID != "" {
		result.LastRunID = ids[len(ids)-1]
	}

	s.logger.Debug().
		Int("candidates", len(ids)).
		Int("runs", len(result.Runs)).
		Msg("Run data selected")
	return result, nil
}

func (s *Service) selectRuns(ctx context.Context, f Filter) ([]profile.RunID, error) {
	if f.AfterRunID != "" {
		return s.backend.ListRunsAfter(ctx, f.AfterRunID)
	}
	since := f.Since
	if since == 0 {
		since = math.MinInt64
	}
	return s.backend.ListRunsSince(ctx, since)
}

// withTimeseriesMarker returns globals with "timeseries": 1 added when the
// run carries timeseries records.
func withTimeseriesMarker(globals map[string]any, run *profile.Run) map[string]any {
	if !profile.HasChannel(run.Records, constants.ChannelTimeseries) {
		return globals
	}
	out := maps.Clone(globals)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[constants.ChannelTimeseries] = 1
	return out
}

// GlobalValues returns the values of keys for every run that has at least
// one of them.
func (s *Service) GlobalValues(ctx context.Context, keys []string) (map[profile.RunID]map[string]any, error) {
	return s.backend.GlobalValuesForKeys(ctx, keys)
}

// Timeseries returns the timeseries records of a run.
func (s *Service) Timeseries(ctx context.Context, id profile.RunID) ([]map[string]any, error) {
	return s.backend.ChannelRecords(ctx, id, constants.ChannelTimeseries)
}

// ChannelData returns the records of channel for each run of ids.
func (s *Service) ChannelData(ctx context.Context, channel string, ids []profile.RunID) (map[profile.RunID][]map[string]any, error) {
	out := make(map[profile.RunID][]map[string]any, len(ids))
	for _, id := range ids {
		records, err := s.backend.ChannelRecords(ctx, id, channel)
		if err != nil {
			return nil, err
		}
		out[id] = records
	}
	return out, nil
}

// Profile returns the region profile of a run.
func (s *Service) Profile(ctx context.Context, id profile.RunID) (map[string]map[string]any, error) {
	return s.backend.RegionProfile(ctx, id)
}

// Metadata returns the global and metric attribute descriptions.
func (s *Service) Metadata(ctx context.Context) (*Metadata, error) {
	globals, err := s.backend.GlobalAttributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load global attributes: %w", err)
	}
	metrics, err := s.backend.MetricAttributes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric attributes: %w", err)
	}
	return &Metadata{Globals: globals, Metrics: metrics}, nil
}

func compileWhere(source string) (*vm.Program, error) {
	if source == "" {
		return nil, nil
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return program, nil
}

func match(program *vm.Program, globals map[string]any) (bool, error) {
	env := maps.Clone(globals)
	if env == nil {
		env = make(map[string]any, 1)
	}
	env["globals"] = globals

	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter returned %T, not a boolean", out)
	}
	return ok, nil
}
