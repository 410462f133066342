package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spot-perf/spot/internal/caliper"
	"github.com/spot-perf/spot/internal/constants"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/store"
	"github.com/spot-perf/spot/internal/testutil"
)

func newDriver(t *testing.T, opts Options) (*Driver, *store.Store) {
	t.Helper()

	fs := afero.NewOsFs()
	logger := testutil.NewTestLogger(t)
	st := testutil.NewTestStore(t, testutil.Dialects[0])
	reader := caliper.NewClient(nil, fs, caliper.Options{}, logger)
	return NewDriver(reader, st, fs, opts, logger), st
}

func writeRun(t *testing.T, dir, name string, launch int64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.WriteDocument(t, afero.NewOsFs(), path, testutil.SampleDocument(path, launch))
	return path
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	a := writeRun(t, dir, "a.json", 1000)
	b := writeRun(t, dir, "b.json", 2000)
	c := writeRun(t, dir, "c.json", 3000)

	d, st := newDriver(t, Options{Workers: 2})
	ctx := context.Background()

	report, err := d.Ingest(ctx, []string{a, b, c, a})
	require.NoError(t, err)
	assert.Len(t, report.Inserted, 3)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Failed)
	assert.Equal(t, a, report.Inserted[0].File)

	runs, err := st.ListRunsSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	// Already stored paths are skipped.
	report, err = d.Ingest(ctx, []string{a, b, c})
	require.NoError(t, err)
	assert.Empty(t, report.Inserted)
	assert.Equal(t, []string{a, b, c}, report.Skipped)
}

func TestIngest_SkipsDuplicateContent(t *testing.T) {
	dir := t.TempDir()
	a := writeRun(t, dir, "a.json", 1000)

	data, err := os.ReadFile(a)
	require.NoError(t, err)
	copyPath := filepath.Join(dir, "copy.json")
	require.NoError(t, os.WriteFile(copyPath, data, 0o644))

	d, st := newDriver(t, Options{Workers: 4})
	report, err := d.Ingest(context.Background(), []string{a, copyPath})
	require.NoError(t, err)
	assert.Len(t, report.Inserted, 1)
	assert.Len(t, report.Skipped, 1)

	runs, err := st.ListRunsSince(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestIngest_ContinueOnError(t *testing.T) {
	dir := t.TempDir()
	a := writeRun(t, dir, "a.json", 1000)
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"globals": {}, "records": []}`), 0o644))

	d, st := newDriver(t, Options{Workers: 2, ContinueOnError: true})
	report, err := d.Ingest(context.Background(), []string{bad, a})
	require.NoError(t, err)
	assert.Len(t, report.Inserted, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bad, report.Failed[0].File)
	assert.Contains(t, report.Failed[0].Error, constants.FormatVersionAttr)

	found, err := st.HasSource(context.Background(), bad)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIngest_StopsOnError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`not json`), 0o644))

	d, _ := newDriver(t, Options{Workers: 1})
	report, err := d.Ingest(context.Background(), []string{bad})
	require.Error(t, err)
	assert.True(t, errors.Is(err, spoterrors.ErrFormat))
	assert.Len(t, report.Failed, 1)
}

func TestIngest_MissingFile(t *testing.T) {
	d, _ := newDriver(t, Options{ContinueOnError: true})
	report, err := d.Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "missing.json")})
	require.NoError(t, err)
	assert.Len(t, report.Failed, 1)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "existing.json", 1000)

	d, st := newDriver(t, Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan *Report, 10)
	done := make(chan error, 1)
	go func() {
		done <- d.Watch(ctx, dir, WatchOptions{
			Settle:   100 * time.Millisecond,
			OnReport: func(r *Report) { reports <- r },
		})
	}()

	select {
	case r := <-reports:
		require.Len(t, r.Inserted, 1)
		assert.Equal(t, filepath.Join(dir, "existing.json"), r.Inserted[0].File)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for initial batch")
	}

	// Write under a temporary name so the file appears complete.
	tmp := filepath.Join(dir, "new.tmp")
	testutil.WriteDocument(t, afero.NewOsFs(), tmp, testutil.SampleDocument("new", 2000))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "new.json")))

	select {
	case r := <-reports:
		require.Len(t, r.Inserted, 1)
		assert.Equal(t, filepath.Join(dir, "new.json"), r.Inserted[0].File)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for new file")
	}

	cancel()
	require.NoError(t, <-done)

	runs, err := st.ListRunsSince(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
