package caliper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/spot-perf/spot/internal/constants"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/retry"
	"github.com/spot-perf/spot/internal/safe"
)

// Tool queries.
const (
	// ObjectQuery asks the tool for the full document form of a file.
	ObjectQuery = "format json(object)"
	// SelectAllQuery returns every record as a flat JSON object.
	SelectAllQuery = "SELECT * FORMAT JSON"
	// durationQuery selects one duration attribute per function.
	durationQuery = "SELECT function,%s WHERE function FORMAT JSON"
)

// DefaultMaxDocumentSize bounds files read by the native reader (1GB).
const DefaultMaxDocumentSize = 1 << 30

var errNotJSON = errors.New("output is not valid JSON")

// Reader turns a profiling file into a Document. Reads may spawn a process
// and can be slow for large files.
type Reader interface {
	Read(ctx context.Context, path string) (*profile.Document, error)
}

// Options configures a Client.
type Options struct {
	// Retry bounds repeated tool invocations after transient failures.
	Retry retry.Config
	// MaxDocumentSize bounds native JSON documents. Zero means DefaultMaxDocumentSize.
	MaxDocumentSize int64
}

// Client reads profiling files through the external tool or, for .json
// files, natively.
type Client struct {
	runner Runner
	fs     afero.Fs
	opts   Options
	logger zerolog.Logger
}

// NewClient creates a Client. fs is used by the native reader.
func NewClient(runner Runner, fs afero.Fs, opts Options, logger zerolog.Logger) *Client {
	if opts.MaxDocumentSize == 0 {
		opts.MaxDocumentSize = DefaultMaxDocumentSize
	}
	return &Client{
		runner: runner,
		fs:     fs,
		opts:   opts,
		logger: logger.With().Str("component", "reader").Logger(),
	}
}

// IsProfile reports whether name has a profiling file extension.
func IsProfile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range constants.ProfileExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsNative reports whether name is read without the external tool.
func IsNative(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}

// Read implements Reader.
func (c *Client) Read(ctx context.Context, path string) (*profile.Document, error) {
	if IsNative(path) {
		return c.readNative(path)
	}

	var doc *profile.Document
	err := c.query(ctx, func(out []byte) error {
		var err error
		doc, err = profile.ParseDocument(out, path)
		return err
	}, "-q", ObjectQuery, path)
	if err != nil {
		return nil, err
	}

	if doc.Dropped > 0 {
		c.logger.Debug().
			Str("file", path).
			Int("dropped", doc.Dropped).
			Msg("Dropped region records without a path")
	}
	return doc, nil
}

func (c *Client) readNative(path string) (*profile.Document, error) {
	data, err := safe.ReadFile(c.fs, path, &safe.ReadOptions{
		MaxSize:       c.opts.MaxDocumentSize,
		AllowSymlinks: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return profile.ParseDocument(data, path)
}

// ListGlobals returns the run level globals of a profiling file.
func (c *Client) ListGlobals(ctx context.Context, path string) (map[string]any, error) {
	var rows []map[string]any
	if err := c.queryJSON(ctx, &rows, "-j", "--list-globals", path); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0] == nil {
		return map[string]any{}, nil
	}
	return rows[0], nil
}

// FuncDurations returns one row per function record holding the function
// name and the value of durationKey.
func (c *Client) FuncDurations(ctx context.Context, durationKey, path string) ([]map[string]any, error) {
	var rows []map[string]any
	if err := c.queryJSON(ctx, &rows, "-q", fmt.Sprintf(durationQuery, durationKey), path); err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectAll returns every record of a profiling file as a flat map.
func (c *Client) SelectAll(ctx context.Context, path string) ([]map[string]any, error) {
	var rows []map[string]any
	if err := c.queryJSON(ctx, &rows, "-q", SelectAllQuery, path); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) queryJSON(ctx context.Context, target any, args ...string) error {
	return c.query(ctx, func(out []byte) error {
		if err := json.Unmarshal(out, target); err != nil {
			return &spoterrors.ToolInvocationError{Command: args, Err: err}
		}
		return nil
	}, args...)
}

// query runs the tool and hands its output to decode, retrying tool
// failures. Errors returned by decode are retried only when they are tool
// invocation errors.
func (c *Client) query(ctx context.Context, decode func([]byte) error, args ...string) error {
	attempt := 0
	return retry.Do(ctx, c.opts.Retry, func() error {
		attempt++
		out, err := c.runner.Run(ctx, args...)
		if err != nil {
			if !errors.Is(err, spoterrors.ErrToolInvocation) {
				err = &spoterrors.ToolInvocationError{Command: args, Err: err}
			}
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("Tool invocation failed")
			return err
		}
		if !json.Valid(out) {
			return &spoterrors.ToolInvocationError{Command: args, Err: errNotJSON}
		}
		return decode(out)
	}, spoterrors.IsRetryable)
}
