package store

import (
	"context"
	"fmt"

	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/sqldb"
)

// initSchema creates all tables and indexes. It is idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer spoterrors.DeferRollback(s.logger, tx)

	for _, ddl := range schemaDDL(s.db.Dialect) {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// schemaDDL returns the DDL statements for dialect.
func schemaDDL(d sqldb.Dialect) []string {
	var ddl []string

	pre, attrID := d.AutoIncrement(attributesTable, "attr_id")
	ddl = append(ddl, pre...)
	ddl = append(ddl,
		// Attribute registry. A name is defined once and never updated.
		`CREATE TABLE IF NOT EXISTS attributes (
			`+attrID+`,
			name TEXT NOT NULL UNIQUE,
			datatype TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'other' CHECK (kind IN ('global', 'metric', 'other')),
			alias TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attributes_kind ON attributes(kind)`,
	)

	pre, runID := d.AutoIncrement(runsTable, "id")
	ddl = append(ddl, pre...)
	ddl = append(ddl,
		// One row per ingested profiling file.
		`CREATE TABLE IF NOT EXISTS runs (
			`+runID+`,
			uid TEXT NOT NULL UNIQUE,
			launchdate BIGINT NOT NULL DEFAULT 0,
			spot_options TEXT NOT NULL DEFAULT '',
			spot_channels TEXT NOT NULL DEFAULT '',
			globals TEXT NOT NULL,
			records TEXT NOT NULL,
			source_file TEXT NOT NULL DEFAULT '',
			source_hash TEXT NOT NULL DEFAULT '',
			ingested_at BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_launchdate ON runs(launchdate)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_source_file ON runs(source_file)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_source_hash ON runs(source_hash)`,
	)

	pre, kvID := d.AutoIncrement(keyvalTable, "id")
	ddl = append(ddl, pre...)
	ddl = append(ddl,
		// Projection of run globals for filtering without decoding runs.
		`CREATE TABLE IF NOT EXISTS keyval (
			`+kvID+`,
			attr_id BIGINT NOT NULL REFERENCES attributes(attr_id),
			value TEXT NOT NULL,
			run BIGINT NOT NULL REFERENCES runs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keyval_attr ON keyval(attr_id)`,
		`CREATE INDEX IF NOT EXISTS idx_keyval_run ON keyval(run)`,
	)

	return ddl
}
