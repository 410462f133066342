// Package ingest drives profiling files into a run store.
//
// Each file is read, classified and inserted sequentially; many files are
// read on a bounded pool of workers. A file is ingested at most once: the
// driver skips files whose path or content fingerprint is already stored,
// and the check and the insert happen under one lock so two workers never
// store the same content twice.
package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"github.com/zeebo/xxh3"

	"github.com/spot-perf/spot/internal/caliper"
	"github.com/spot-perf/spot/internal/constants"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/store"
)

// Store is the write side of a run store.
type Store interface {
	HasSource(ctx context.Context, file string) (bool, error)
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)
	Insert(ctx context.Context, doc *profile.Document, src store.Source) (profile.RunID, error)
}

// Options configures a Driver.
type Options struct {
	// Workers bounds concurrent file reads.
	Workers int
	// ContinueOnError keeps ingesting the batch after a file fails.
	ContinueOnError bool
}

// Driver ingests profiling files.
type Driver struct {
	reader caliper.Reader
	store  Store
	fs     afero.Fs
	opts   Options
	logger zerolog.Logger

	// insertMu makes the duplicate check and the insert of a file atomic
	// with respect to the other workers.
	insertMu sync.Mutex
}

// NewDriver creates a Driver. fs is used to fingerprint files.
func NewDriver(reader caliper.Reader, st Store, fs afero.Fs, opts Options, logger zerolog.Logger) *Driver {
	if opts.Workers <= 0 {
		opts.Workers = constants.DefaultWorkers
	}
	return &Driver{
		reader: reader,
		store:  st,
		fs:     fs,
		opts:   opts,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// Inserted is a file stored as a new run.
type Inserted struct {
	File  string        `json:"file"`
	RunID profile.RunID `json:"run_id"`
}

// Failure is a file that could not be ingested.
type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Report summarizes a batch.
type Report struct {
	Inserted []Inserted `json:"inserted"`
	Skipped  []string   `json:"skipped"`
	Failed   []Failure  `json:"failed"`
}

func (r *Report) sort() {
	sort.Slice(r.Inserted, func(i, j int) bool { return r.Inserted[i].File < r.Inserted[j].File })
	sort.Strings(r.Skipped)
	sort.Slice(r.Failed, func(i, j int) bool { return r.Failed[i].File < r.Failed[j].File })
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeSkipped
)

// Ingest stores every file of paths not stored yet. Unless
// ContinueOnError is set, the first failure stops the batch and is
// returned along with the partial report. With ContinueOnError, failures
// are only listed in the report.
func (d *Driver) Ingest(ctx context.Context, paths []string) (*Report, error) {
	return d.ingest(ctx, paths, d.opts.ContinueOnError)
}

func (d *Driver) ingest(ctx context.Context, paths []string, continueOnError bool) (*Report, error) {
	files, err := normalize(paths)
	if err != nil {
		return nil, err
	}

	report := &Report{Inserted: []Inserted{}, Skipped: []string{}, Failed: []Failure{}}
	var mu sync.Mutex

	p := pool.New().WithContext(ctx).WithMaxGoroutines(d.opts.Workers)
	if !continueOnError {
		p = p.WithCancelOnError().WithFirstError()
	}

	for _, file := range files {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, result, err := d.ingestFile(ctx, file)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, Failure{File: file, Error: err.Error()})
				d.logger.Error().Err(err).Str("file", file).Msg("Failed to ingest file")
				if continueOnError {
					return nil
				}
				return err
			case result == outcomeSkipped:
				report.Skipped = append(report.Skipped, file)
			default:
				report.Inserted = append(report.Inserted, Inserted{File: file, RunID: id})
			}
			return nil
		})
	}

	err = p.Wait()
	report.sort()
	return report, err
}

func (d *Driver) ingestFile(ctx context.Context, file string) (profile.RunID, outcome, error) {
	start := time.Now()

	if stored, err := d.store.HasSource(ctx, file); err != nil {
		return "", 0, err
	} else if stored {
		d.logger.Debug().Str("file", file).Msg("File already ingested")
		return "", outcomeSkipped, nil
	}

	fingerprint, err := d.fingerprint(file)
	if err != nil {
		return "", 0, err
	}

	doc, err := d.reader.Read(ctx, file)
	if err != nil {
		return "", 0, err
	}

	d.insertMu.Lock()
	defer d.insertMu.Unlock()

	if stored, err := d.store.HasSource(ctx, file); err != nil {
		return "", 0, err
	} else if stored {
		return "", outcomeSkipped, nil
	}
	if stored, err := d.store.HasFingerprint(ctx, fingerprint); err != nil {
		return "", 0, err
	} else if stored {
		d.logger.Info().Str("file", file).Msg("Skipping file with already ingested content")
		return "", outcomeSkipped, nil
	}

	id, err := d.store.Insert(ctx, doc, store.Source{File: file, Fingerprint: fingerprint})
	if err != nil {
		return "", 0, err
	}

	d.logger.Info().
		Str("file", file).
		Str("run_id", id.String()).
		Int("records", len(doc.Records)).
		Dur("duration", time.Since(start)).
		Msg("Run ingested")
	return id, outcomeInserted, nil
}

// fingerprint returns the xxh3 hash of the file content.
func (d *Driver) fingerprint(file string) (string, error) {
	f, err := d.fs.Open(file)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer spoterrors.DeferClose(d.logger, f, "failed to close profiling file")

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", file, err)
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

// normalize makes paths absolute and drops duplicates.
func normalize(paths []string) ([]string, error) {
	seen := make(map[string]bool, len(paths))
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		files = append(files, abs)
	}
	return files, nil
}
