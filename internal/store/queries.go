package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/schema"
	"github.com/spot-perf/spot/internal/sqldb"
)

// HasSource reports whether a run was ingested from file.
func (s *Store) HasSource(ctx context.Context, file string) (bool, error) {
	return s.exists(ctx, "source_file", file)
}

// HasFingerprint reports whether a run with the given content hash exists.
func (s *Store) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	return s.exists(ctx, "source_hash", fingerprint)
}

func (s *Store) exists(ctx context.Context, column, value string) (bool, error) {
	query, args := sqldb.NewQueryBuilder(runsTable).
		Select("COUNT(*)").
		Where(column+" = ?", value).
		MustBuild()

	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", column, err)
	}
	return n > 0, nil
}

// ListRunsSince returns the runs launched after minTimestamp, ordered by
// id.
func (s *Store) ListRunsSince(ctx context.Context, minTimestamp int64) ([]profile.RunID, error) {
	return s.listRunIDs(ctx, sqldb.NewQueryBuilder(runsTable).Gt("launchdate", minTimestamp))
}

// ListRunsAfter returns the runs inserted after the run with id after,
// ordered by id. An empty id lists every run.
func (s *Store) ListRunsAfter(ctx context.Context, after profile.RunID) ([]profile.RunID, error) {
	var last int64
	if after != "" {
		var err error
		if last, err = parseRunID(after); err != nil {
			return nil, err
		}
	}
	return s.listRunIDs(ctx, sqldb.NewQueryBuilder(runsTable).Gt("id", last))
}

func (s *Store) listRunIDs(ctx context.Context, b *sqldb.Builder) ([]profile.RunID, error) {
	query, args := b.Select("id").OrderBy("id").MustBuild()
	s.logger.Trace().Str("query", sqldb.InterpolateQuery(query, args)).Msg("Listing runs")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer spoterrors.DeferClose(s.logger, rows, "failed to close rows")

	ids := []profile.RunID{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, formatRunID(id))
	}
	return ids, rows.Err()
}

// GlobalValuesForKeys returns, for every run having at least one of keys,
// the values of those keys coerced to their datatypes. Keys without rows
// are absent from the result.
func (s *Store) GlobalValuesForKeys(ctx context.Context, keys []string) (map[profile.RunID]map[string]any, error) {
	result := make(map[profile.RunID]map[string]any)
	if len(keys) == 0 {
		return result, nil
	}

	values := make([]interface{}, len(keys))
	for i, k := range keys {
		values[i] = k
	}
	query, args := sqldb.NewQueryBuilder("keyval k JOIN attributes a ON k.attr_id = a.attr_id").
		Select("a.name", "a.datatype", "k.value", "k.run").
		In("a.name", values...).
		OrderBy("k.run").
		MustBuild()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query global values: %w", err)
	}
	defer spoterrors.DeferClose(s.logger, rows, "failed to close rows")

	for rows.Next() {
		var name, datatype, value string
		var run int64
		if err := rows.Scan(&name, &datatype, &value, &run); err != nil {
			return nil, fmt.Errorf("failed to scan global value: %w", err)
		}

		id := formatRunID(run)
		if result[id] == nil {
			result[id] = make(map[string]any)
		}
		result[id][name] = s.decodeValue(name, profile.Datatype(datatype), value)
	}
	return result, rows.Err()
}

func (s *Store) decodeValue(name string, datatype profile.Datatype, value string) any {
	v, err := profile.Coerce(datatype, value)
	if err != nil {
		s.logger.Warn().Err(err).Str("attribute", name).Msg("Stored value does not match its datatype")
		return value
	}
	return v
}

// Run loads a stored run. It returns errors.ErrNotFound for unknown ids.
func (s *Store) Run(ctx context.Context, id profile.RunID) (*profile.Run, error) {
	n, err := parseRunID(id)
	if err != nil {
		return nil, err
	}

	row, err := sqldb.NewTable[runRow](s.db, runsTable).Get(ctx, n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, spoterrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var flat []map[string]any
	if err := json.Unmarshal([]byte(row.Records), &flat); err != nil {
		return nil, fmt.Errorf("failed to decode records of run %s: %w", id, err)
	}
	records, _ := profile.ParseRecords(flat)

	globals, err := s.decodeGlobals(row.Globals)
	if err != nil {
		return nil, fmt.Errorf("failed to decode globals of run %s: %w", id, err)
	}

	return &profile.Run{
		ID:         id,
		UID:        row.UID,
		LaunchDate: row.LaunchDate,
		Globals:    globals,
		Records:    records,
		SourceFile: row.SourceFile,
	}, nil
}

// decodeGlobals restores typed global values from their JSON form.
func (s *Store) decodeGlobals(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	globals := map[string]any{}
	if err := dec.Decode(&globals); err != nil {
		return nil, err
	}
	for name, v := range globals {
		attr, ok := s.registry.Get(name)
		if !ok {
			if n, isNumber := v.(json.Number); isNumber {
				globals[name] = n.String()
			}
			continue
		}
		globals[name] = s.decodeValue(name, attr.Datatype, profile.FormatValue(v))
	}
	return globals, nil
}

// Globals returns the globals of a run.
func (s *Store) Globals(ctx context.Context, id profile.RunID) (map[string]any, error) {
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.Globals, nil
}

// RegionProfile returns the region profile of a run keyed by path.
func (s *Store) RegionProfile(ctx context.Context, id profile.RunID) (map[string]map[string]any, error) {
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.RegionProfile(), nil
}

// ChannelRecords returns the records of one channel of a run, without
// the channel marker.
func (s *Store) ChannelRecords(ctx context.Context, id profile.RunID, channel string) ([]map[string]any, error) {
	run, err := s.Run(ctx, id)
	if err != nil {
		return nil, err
	}
	return run.ChannelRecords(channel), nil
}

// GlobalAttributes returns the metadata of every global attribute.
func (s *Store) GlobalAttributes(ctx context.Context) (map[string]profile.AttributeInfo, error) {
	return s.attributeInfo(ctx, profile.KindGlobal)
}

// MetricAttributes returns the metadata of every metric attribute.
func (s *Store) MetricAttributes(ctx context.Context) (map[string]profile.AttributeInfo, error) {
	return s.attributeInfo(ctx, profile.KindMetric)
}

func (s *Store) attributeInfo(ctx context.Context, kind profile.Kind) (map[string]profile.AttributeInfo, error) {
	rows, err := sqldb.NewTable[attributeRow](s.db, attributesTable).
		Find(ctx, sqldb.NewQueryBuilder(attributesTable).Eq("kind", string(kind)).OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s attributes: %w", kind, err)
	}

	info := make(map[string]profile.AttributeInfo, len(rows))
	for _, r := range rows {
		info[r.Name] = r.attribute().Info()
	}
	return info, nil
}

// Attributes returns every registered attribute sorted by name.
func (s *Store) Attributes(ctx context.Context) ([]profile.Attribute, error) {
	rows, err := sqldb.NewTable[attributeRow](s.db, attributesTable).
		Find(ctx, sqldb.NewQueryBuilder(attributesTable).OrderBy("name"))
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes: %w", err)
	}

	attrs := make([]profile.Attribute, 0, len(rows))
	for _, r := range rows {
		attrs = append(attrs, r.attribute())
	}
	return attrs, nil
}

// loadAttributes refreshes the registry cache from the attributes table,
// restricted to names when given.
func (s *Store) loadAttributes(ctx context.Context, names ...interface{}) error {
	rows, err := sqldb.NewTable[attributeRow](s.db, attributesTable).
		Find(ctx, sqldb.NewQueryBuilder(attributesTable).In("name", names...))
	if err != nil {
		return fmt.Errorf("failed to load attributes: %w", err)
	}

	for _, r := range rows {
		s.registry.Add(r.attribute())
	}
	return nil
}

// Registry returns the store's attribute registry cache.
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

func parseRunID(id profile.RunID) (int64, error) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q: %w", id, spoterrors.ErrNotFound)
	}
	return n, nil
}

func formatRunID(id int64) profile.RunID {
	return profile.RunID(strconv.FormatInt(id, 10))
}

// QueryReadOnly runs an ad-hoc SQL query and hands the rows to fn. The
// query runs in a transaction that is always rolled back, so statements
// that write leave the store unchanged.
func (s *Store) QueryReadOnly(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer spoterrors.DeferRollback(s.logger, tx)

	s.logger.Debug().Str("query", query).Msg("Running ad-hoc query")

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer spoterrors.DeferClose(s.logger, rows, "failed to close rows")

	if err := fn(rows); err != nil {
		return err
	}
	return rows.Err()
}
