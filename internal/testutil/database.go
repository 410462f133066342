package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spot-perf/spot/internal/sqldb"
	"github.com/spot-perf/spot/internal/store"
)

// Dialects lists the SQL engines store tests run against.
var Dialects = []sqldb.Dialect{sqldb.DuckDB, sqldb.SQLite}

// NewTestStore creates a run store in a temporary directory.
// The store is closed when the test completes.
func NewTestStore(t *testing.T, dialect sqldb.Dialect) *store.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spot."+string(dialect))
	s, err := store.Open(context.Background(), dialect, path, NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})

	return s
}
