// Package store persists profiling runs in a SQL database (DuckDB or
// SQLite).
//
// Three tables are kept: the attribute registry, one row per run with its
// globals and records serialized as JSON, and a key-value index holding
// one row per (run, global attribute) pair so globals can be filtered
// without decoding run payloads. All tables are append-only.
//
// The store admits one writer at a time; every run is inserted in a single
// transaction. At-most-once ingestion is the caller's responsibility: check
// HasSource or HasFingerprint before calling Insert.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/spot-perf/spot/internal/retry"
	"github.com/spot-perf/spot/internal/schema"
	"github.com/spot-perf/spot/internal/sqldb"
)

// Table names.
const (
	attributesTable = "attributes"
	runsTable       = "runs"
	keyvalTable     = "keyval"
)

// conflictRetry bounds whole-transaction retries after write conflicts
// with another process.
var conflictRetry = retry.Config{
	MaxRetries:     5,
	InitialBackoff: 20 * time.Millisecond,
	MaxBackoff:     time.Second,
	Jitter:         true,
}

// Store is a SQL backed run store.
type Store struct {
	db     *sqldb.DB
	logger zerolog.Logger

	// writeMu serializes writers; readers go straight to the database.
	writeMu sync.Mutex
	// registry caches the attributes table.
	registry *schema.Registry
}

// Open opens (creating if needed) the store database at path.
func Open(ctx context.Context, dialect sqldb.Dialect, path string, logger zerolog.Logger) (*Store, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sqldb.Open(dialect, path)
	if err != nil {
		return nil, err
	}

	s, err := New(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New initializes a store on an open database.
func New(ctx context.Context, db *sqldb.DB, logger zerolog.Logger) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger.With().Str("component", "store").Logger(),
		registry: schema.NewRegistry(),
	}

	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.loadAttributes(ctx); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("path", db.Path).
		Str("driver", string(db.Dialect)).
		Int("attributes", s.registry.Len()).
		Msg("Store opened")

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path
}

// Dialect returns the SQL engine in use.
func (s *Store) Dialect() sqldb.Dialect {
	return s.db.Dialect
}
