package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/spot-perf/spot/internal/constants"
	spoterrors "github.com/spot-perf/spot/internal/errors"
	"github.com/spot-perf/spot/internal/profile"
	"github.com/spot-perf/spot/internal/retry"
	"github.com/spot-perf/spot/internal/schema"
	"github.com/spot-perf/spot/internal/sqldb"
)

// Source identifies where an inserted run came from.
type Source struct {
	// File is the absolute path of the profiling file.
	File string
	// Fingerprint is a content hash of the file.
	Fingerprint string
}

// Insert stores doc as a new run and returns its id.
//
// The document is validated and its globals coerced before any statement
// runs, so format and validation errors leave the database untouched.
// Schema extension, the run row and its key-value rows are written in one
// transaction.
func (s *Store) Insert(ctx context.Context, doc *profile.Document, src Source) (profile.RunID, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	launch, err := doc.LaunchDate()
	if err != nil {
		return "", err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	plan, err := s.registry.Plan(doc)
	if err != nil {
		return "", err
	}

	row, err := newRunRow(doc, plan, launch, src)
	if err != nil {
		return "", err
	}

	err = retry.Do(ctx, conflictRetry, func() error {
		return s.insertTx(ctx, plan, row)
	}, sqldb.IsTransactionConflict)
	if err != nil {
		return "", fmt.Errorf("failed to insert run from %s: %w", src.File, err)
	}

	// Another process may have defined some of the new names first; take
	// the stored definitions.
	if len(plan.New) > 0 {
		names := make([]interface{}, 0, len(plan.New))
		for _, a := range plan.New {
			names = append(names, a.Name)
		}
		if err := s.loadAttributes(ctx, names...); err != nil {
			return "", err
		}
	}

	id := profile.RunID(strconv.FormatInt(row.ID, 10))
	s.logger.Debug().
		Str("file", src.File).
		Str("run_id", id.String()).
		Int("records", len(doc.Records)).
		Int("new_attributes", len(plan.New)).
		Msg("Run inserted")

	return id, nil
}

func newRunRow(doc *profile.Document, plan *schema.Plan, launch int64, src Source) (*runRow, error) {
	globalsJSON, err := json.Marshal(plan.RunGlobals(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode globals: %w", err)
	}
	recordsJSON, err := json.Marshal(profile.FlattenRecords(doc.Records))
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}

	return &runRow{
		UID:        uuid.NewString(),
		LaunchDate: launch,
		Options:    doc.GlobalString(constants.OptionsAttr),
		Channels:   doc.GlobalString(constants.ChannelsAttr),
		Globals:    string(globalsJSON),
		Records:    string(recordsJSON),
		SourceFile: src.File,
		SourceHash: src.Fingerprint,
		IngestedAt: time.Now().Unix(),
	}, nil
}

func (s *Store) insertTx(ctx context.Context, plan *schema.Plan, row *runRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer spoterrors.DeferRollback(s.logger, tx)

	attrs := sqldb.NewTable[attributeRow](tx, attributesTable)
	for _, a := range plan.New {
		attrRow, err := newAttributeRow(a)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", a.Name, err)
		}
		if _, err := attrs.InsertIfAbsent(ctx, attrRow); err != nil {
			return fmt.Errorf("failed to register attribute %s: %w", a.Name, err)
		}
	}

	names := make([]string, 0, len(plan.Globals))
	for name := range plan.Globals {
		names = append(names, name)
	}
	sort.Strings(names)

	ids, err := attributeIDs(ctx, attrs, names)
	if err != nil {
		return err
	}

	runID, err := sqldb.NewTable[runRow](tx, runsTable).Insert(ctx, row)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	kv := sqldb.NewTable[keyvalRow](tx, keyvalTable)
	for _, name := range names {
		attrID, ok := ids[name]
		if !ok {
			continue
		}
		entry := &keyvalRow{AttrID: attrID, Value: profile.FormatValue(plan.Globals[name]), Run: runID}
		if _, err := kv.Insert(ctx, entry); err != nil {
			return fmt.Errorf("failed to index global %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func attributeIDs(ctx context.Context, attrs *sqldb.Table[attributeRow], names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	if len(names) == 0 {
		return ids, nil
	}

	values := make([]interface{}, len(names))
	for i, n := range names {
		values[i] = n
	}
	rows, err := attrs.Find(ctx, sqldb.NewQueryBuilder(attributesTable).In("name", values...))
	if err != nil {
		return nil, fmt.Errorf("failed to look up attribute ids: %w", err)
	}
	for _, r := range rows {
		ids[r.Name] = r.ID
	}
	return ids, nil
}
