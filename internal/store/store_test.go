package store_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/store"
	"github.com/spot-perf/spot/internal/testutil"
)

func forEachDialect(t *testing.T, fn func(t *testing.T, s *store.Store)) {
	for _, dialect := range testutil.Dialects {
		t.Run(string(dialect), func(t *testing.T) {
			fn(t, testutil.NewTestStore(t, dialect))
		})
	}
}

func TestStore_InsertAndQuery(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx, cancel := testutil.NewTestContext()
		defer cancel()

		id, err := s.Insert(ctx, testutil.SampleDocument("/data/a.cali", 1000), store.Source{File: "/data/a.cali", Fingerprint: "f1"})
		require.NoError(t, err)
		assert.Equal(t, profile.RunID("1"), id)

		run, err := s.Run(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), run.LaunchDate)
		assert.Equal(t, "/data/a.cali", run.SourceFile)
		assert.NotEmpty(t, run.UID)
		assert.Equal(t, int64(1000), run.Globals["launchdate"])
		assert.Equal(t, int64(64), run.Globals["jobsize"])
		assert.Equal(t, "quartz", run.Globals["cluster"])
		assert.Equal(t, "1", run.Globals["spot.format.version"])

		regions, err := s.RegionProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, map[string]map[string]any{
			"main":     {"time.duration": 5.0},
			"main/foo": {"time.duration": 3.5},
		}, regions)

		series, err := s.ChannelRecords(ctx, id, "timeseries")
		require.NoError(t, err)
		assert.Equal(t, []map[string]any{
			{"iteration": 1.0, "time": 0.5},
			{"iteration": 2.0, "time": 0.7},
		}, series)

		topdown, err := s.ChannelRecords(ctx, id, "topdown")
		require.NoError(t, err)
		assert.Empty(t, topdown)

		values, err := s.GlobalValuesForKeys(ctx, []string{"jobsize", "cluster", "no.such.key"})
		require.NoError(t, err)
		assert.Equal(t, map[profile.RunID]map[string]any{
			id: {"jobsize": int64(64), "cluster": "quartz"},
		}, values)

		globals, err := s.GlobalAttributes(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]profile.AttributeInfo{
			"cluster":    {Type: "string"},
			"jobsize":    {Type: "int"},
			"launchdate": {Type: "int"},
			"user":       {Type: "string"},
		}, globals)

		metrics, err := s.MetricAttributes(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]profile.AttributeInfo{
			"time.duration": {Type: "double", Alias: "Time (inc)", Unit: "sec"},
		}, metrics)
	})
}

func TestStore_DocumentScenario(t *testing.T) {
	input := `{
		"globals": {"spot.format.version": "1", "spot.metrics": "time.duration,", "launchdate": "1000"},
		"records": [{"path": ["main", "foo"], "time.duration": 3.5}]
	}`

	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		doc, err := profile.ParseDocument([]byte(input), "run.cali")
		require.NoError(t, err)

		id, err := s.Insert(ctx, doc, store.Source{File: "run.cali"})
		require.NoError(t, err)

		regions, err := s.RegionProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, map[string]map[string]any{"main/foo": {"time.duration": 3.5}}, regions)

		again, err := s.RegionProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, regions, again)

		attrs, err := s.Attributes(ctx)
		require.NoError(t, err)
		kinds := map[string]profile.Kind{}
		for _, a := range attrs {
			kinds[a.Name] = a.Kind
		}
		assert.Equal(t, profile.KindMetric, kinds["time.duration"])
	})
}

func TestStore_InsertRejectsInvalidDocuments(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		missingVersion := testutil.SampleDocument("a.cali", 1000)
		delete(missingVersion.Globals, "spot.format.version")
		_, err := s.Insert(ctx, missingVersion, store.Source{File: "a.cali"})
		assert.True(t, errors.Is(err, spoterrors.ErrFormat))

		badValue := testutil.SampleDocument("b.cali", 1000)
		badValue.Globals["jobsize"] = "lots"
		_, err = s.Insert(ctx, badValue, store.Source{File: "b.cali"})
		assert.True(t, errors.Is(err, spoterrors.ErrValidation))

		badLaunch := testutil.SampleDocument("c.cali", 1000)
		badLaunch.Globals["launchdate"] = "tuesday"
		_, err = s.Insert(ctx, badLaunch, store.Source{File: "c.cali"})
		assert.True(t, errors.Is(err, spoterrors.ErrValidation))

		runs, err := s.ListRunsSince(ctx, -1)
		require.NoError(t, err)
		assert.Empty(t, runs, "no run rows after failed inserts")

		attrs, err := s.Attributes(ctx)
		require.NoError(t, err)
		assert.Empty(t, attrs, "no attributes after failed inserts")

		for _, file := range []string{"a.cali", "b.cali", "c.cali"} {
			found, err := s.HasSource(ctx, file)
			require.NoError(t, err)
			assert.False(t, found)
		}
	})
}

func TestStore_AttributesFirstWriteWins(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		_, err := s.Insert(ctx, testutil.SampleDocument("a.cali", 1000), store.Source{File: "a.cali"})
		require.NoError(t, err)

		second := testutil.SampleDocument("b.cali", 2000)
		second.Attributes["time.duration"] = map[string]any{"cali.attribute.type": "int", "attribute.unit": "ms"}
		second.Attributes["cluster"] = map[string]any{"cali.attribute.type": "string"}
		_, err = s.Insert(ctx, second, store.Source{File: "b.cali"})
		require.NoError(t, err)

		metrics, err := s.MetricAttributes(ctx)
		require.NoError(t, err)
		assert.Equal(t, profile.AttributeInfo{Type: "double", Alias: "Time (inc)", Unit: "sec"}, metrics["time.duration"])

		globals, err := s.GlobalAttributes(ctx)
		require.NoError(t, err)
		assert.Contains(t, globals, "cluster", "kind is never downgraded")
	})
}

func TestStore_ListRuns(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		for i, launch := range []int64{3000, 1000, 2000} {
			file := fmt.Sprintf("run%d.cali", i)
			_, err := s.Insert(ctx, testutil.SampleDocument(file, launch), store.Source{File: file})
			require.NoError(t, err)
		}

		all, err := s.ListRunsSince(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []profile.RunID{"1", "2", "3"}, all)

		later, err := s.ListRunsSince(ctx, 1500)
		require.NoError(t, err)
		assert.Equal(t, []profile.RunID{"1", "3"}, later)
		assert.Subset(t, all, later)

		none, err := s.ListRunsSince(ctx, 3000)
		require.NoError(t, err)
		assert.Empty(t, none)

		after, err := s.ListRunsAfter(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, []profile.RunID{"2", "3"}, after)

		after, err = s.ListRunsAfter(ctx, "")
		require.NoError(t, err)
		assert.Len(t, after, 3)

		_, err = s.ListRunsAfter(ctx, "abc")
		assert.Error(t, err)
	})
}

func TestStore_SourceLookups(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		_, err := s.Insert(ctx, testutil.SampleDocument("/data/a.cali", 1000), store.Source{File: "/data/a.cali", Fingerprint: "abc123"})
		require.NoError(t, err)

		found, err := s.HasSource(ctx, "/data/a.cali")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = s.HasSource(ctx, "/data/b.cali")
		require.NoError(t, err)
		assert.False(t, found)

		found, err = s.HasFingerprint(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, found)

		found, err = s.HasFingerprint(ctx, "")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStore_RunNotFound(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		_, err := s.Run(ctx, "42")
		assert.True(t, errors.Is(err, spoterrors.ErrNotFound))

		_, err = s.RegionProfile(ctx, "not-a-number")
		assert.True(t, errors.Is(err, spoterrors.ErrNotFound))
	})
}

func TestStore_ConcurrentInsertsShareAttributes(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				doc := testutil.SampleDocument(fmt.Sprintf("run%d.cali", i), int64(1000+i))
				doc.Globals["spot.metrics"] = "time.duration,new.metric"
				doc.Attributes["new.metric"] = map[string]any{"cali.attribute.type": "double", "attribute.unit": fmt.Sprintf("u%d", i)}
				_, err := s.Insert(ctx, doc, store.Source{File: doc.Source})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		attrs, err := s.Attributes(ctx)
		require.NoError(t, err)
		count := 0
		for _, a := range attrs {
			if a.Name == "new.metric" {
				count++
			}
		}
		assert.Equal(t, 1, count)

		runs, err := s.ListRunsSince(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, runs, 8)
	})
}

func TestStore_Reopen(t *testing.T) {
	for _, dialect := range testutil.Dialects {
		t.Run(string(dialect), func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "nested", "spot.db")
			logger := testutil.NewTestLogger(t)

			s, err := store.Open(ctx, dialect, path, logger)
			require.NoError(t, err)
			id, err := s.Insert(ctx, testutil.SampleDocument("a.cali", 1000), store.Source{File: "a.cali"})
			require.NoError(t, err)
			require.NoError(t, s.Close())

			s, err = store.Open(ctx, dialect, path, logger)
			require.NoError(t, err)
			defer func() { _ = s.Close() }()

			assert.Equal(t, 5, s.Registry().Len())

			globals, err := s.Globals(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, int64(64), globals["jobsize"])

			id2, err := s.Insert(ctx, testutil.SampleDocument("b.cali", 2000), store.Source{File: "b.cali"})
			require.NoError(t, err)
			assert.Equal(t, profile.RunID("2"), id2)
		})
	}
}

func TestStore_QueryReadOnly(t *testing.T) {
	forEachDialect(t, func(t *testing.T, s *store.Store) {
		ctx := context.Background()
		_, err := s.Insert(ctx, testutil.SampleDocument("/data/a.cali", 1000), store.Source{File: "/data/a.cali"})
		require.NoError(t, err)

		var count int64
		err = s.QueryReadOnly(ctx, "SELECT COUNT(*) FROM runs", func(rows *sql.Rows) error {
			require.True(t, rows.Next())
			return rows.Scan(&count)
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		err = s.QueryReadOnly(ctx, "SELECT * FROM missing_table", func(rows *sql.Rows) error { return nil })
		assert.Error(t, err)
	})
}
