package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/spot-perf/spot/internal/caliper"
)

// DefaultSettle is how long a file must stay unchanged before it is
// ingested by Watch.
const DefaultSettle = 2 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	// Settle is the quiet period after the last write to a file. Zero
	// means DefaultSettle.
	Settle time.Duration
	// OnReport receives the report of every ingested batch.
	OnReport func(*Report)
}

// Watch ingests the profiling files of dir, then keeps ingesting files as
// they are created or written until ctx is done. Batches always continue
// past failing files. The directory must be on the local filesystem.
func (d *Driver) Watch(ctx context.Context, dir string, opts WatchOptions) error {
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close watcher")
		}
	}()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	d.logger.Info().Str("dir", dir).Msg("Watching for profiling files")

	existing, err := d.listProfiles(dir)
	if err != nil {
		return err
	}
	d.watchBatch(ctx, existing, opts)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(opts.Settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if (event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) && caliper.IsProfile(event.Name) {
				pending[event.Name] = time.Now()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn().Err(err).Msg("Watcher error")

		case now := <-ticker.C:
			var ready []string
			for path, last := range pending {
				if now.Sub(last) >= opts.Settle {
					ready = append(ready, path)
					delete(pending, path)
				}
			}
			sort.Strings(ready)
			d.watchBatch(ctx, ready, opts)
		}
	}
}

func (d *Driver) watchBatch(ctx context.Context, paths []string, opts WatchOptions) {
	if len(paths) == 0 {
		return
	}

	report, err := d.ingest(ctx, paths, true)
	if err != nil {
		d.logger.Error().Err(err).Msg("Batch ingestion failed")
	}
	if report != nil && opts.OnReport != nil {
		opts.OnReport(report)
	}
}

func (d *Driver) listProfiles(dir string) ([]string, error) {
	infos, err := afero.ReadDir(d.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var paths []string
	for _, info := range infos {
		if !info.IsDir() && caliper.IsProfile(info.Name()) {
			paths = append(paths, filepath.Join(dir, info.Name()))
		}
	}
	return paths, nil
}
