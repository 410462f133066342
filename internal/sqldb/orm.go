package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spot-perf/spot/internal/retry"
)

// Execer is an interface that matches both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conflictRetry bounds retries of writes that hit a concurrent writer.
var conflictRetry = retry.Config{
	MaxRetries:     10,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
	Jitter:         true,
}

// Table represents a generic database table wrapper for type T.
type Table[T any] struct {
	db            Execer
	tableName     string
	columns       []string
	pkColumns     []string
	uniqueColumns []string
	autoColumns   map[string]bool // Generated by the database, never inserted.
	fieldMap      map[string]int  // Map column name to field index.
}

// NewTable creates a new Table[T] instance.
// T must be a struct with `sql` tags.
func NewTable[T any](db Execer, tableName string) *Table[T] {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic("Table generic type T must be a struct")
	}

	table := &Table[T]{
		db:          db,
		tableName:   tableName,
		autoColumns: make(map[string]bool),
		fieldMap:    make(map[string]int),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("sql")
		if tag == "" || tag == "-" {
			continue
		}

		parts := strings.Split(tag, ",")
		colName := strings.TrimSpace(parts[0])
		table.columns = append(table.columns, colName)
		table.fieldMap[colName] = i

		for _, p := range parts[1:] {
			switch strings.TrimSpace(p) {
			case "pk":
				table.pkColumns = append(table.pkColumns, colName)
			case "unique":
				table.uniqueColumns = append(table.uniqueColumns, colName)
			case "auto":
				table.autoColumns[colName] = true
			}
		}
	}

	return table
}

// Columns returns the mapped column names in struct order.
func (t *Table[T]) Columns() []string {
	return append([]string(nil), t.columns...)
}

// insertParts returns the insertable columns of item with their values.
func (t *Table[T]) insertParts(item *T) ([]string, []string, []interface{}) {
	val := reflect.ValueOf(item).Elem()

	var cols, placeholders []string
	var values []interface{}
	for _, col := range t.columns {
		if t.autoColumns[col] {
			continue
		}
		cols = append(cols, col)
		placeholders = append(placeholders, "?")
		values = append(values, val.Field(t.fieldMap[col]).Interface())
	}
	return cols, placeholders, values
}

// Insert inserts item and returns the value of its generated key, if the
// table has one. It fails on duplicates.
func (t *Table[T]) Insert(ctx context.Context, item *T) (int64, error) {
	cols, placeholders, values := t.insertParts(item)

	// #nosec G201 - table and column names are not user input, they come from struct tags
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.tableName,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)

	returning := ""
	for _, pk := range t.pkColumns {
		if t.autoColumns[pk] {
			returning = pk
			break
		}
	}

	var id int64
	err := t.write(ctx, func() error {
		if returning == "" {
			_, err := t.db.ExecContext(ctx, query, values...)
			return err
		}
		return t.db.QueryRowContext(ctx, query+" RETURNING "+returning, values...).Scan(&id)
	})
	if err != nil {
		return 0, err
	}

	if returning != "" {
		reflect.ValueOf(item).Elem().Field(t.fieldMap[returning]).SetInt(id)
	}
	return id, nil
}

// InsertIfAbsent inserts item unless a row with the same unique columns
// (or primary key, when no unique column is tagged) already exists. It
// reports whether a row was inserted.
func (t *Table[T]) InsertIfAbsent(ctx context.Context, item *T) (bool, error) {
	target := t.uniqueColumns
	if len(target) == 0 {
		target = t.pkColumns
	}
	if len(target) == 0 {
		return false, errors.New("no conflict target defined for table")
	}

	cols, placeholders, values := t.insertParts(item)

	// #nosec G201 - table and column names are not user input, they come from struct tags
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		t.tableName,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(target, ", "),
	)

	var inserted bool
	err := t.write(ctx, func() error {
		result, err := t.db.ExecContext(ctx, query, values...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

// write runs one write statement. Outside a transaction, conflicts with a
// concurrent writer are retried. Inside one the conflict aborts the whole
// transaction, so it is returned for the caller to retry the transaction.
func (t *Table[T]) write(ctx context.Context, fn func() error) error {
	if !retriesStatements(t.db) {
		return fn()
	}
	return retry.Do(ctx, conflictRetry, fn, IsTransactionConflict)
}

func retriesStatements(db Execer) bool {
	_, inTx := db.(*sql.Tx)
	return !inTx
}

// Get retrieves a single item by its value in the first PK column.
func (t *Table[T]) Get(ctx context.Context, id any) (*T, error) {
	if len(t.pkColumns) == 0 {
		return nil, errors.New("no primary key defined for table")
	}
	return t.GetBy(ctx, t.pkColumns[0], id)
}

// GetBy retrieves a single item by the value of column.
func (t *Table[T]) GetBy(ctx context.Context, column string, value any) (*T, error) {
	if _, ok := t.fieldMap[column]; !ok {
		return nil, fmt.Errorf("column %s does not exist in table %s", column, t.tableName)
	}

	// #nosec G201 - table and column names are not user input, they come from struct tags
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(t.columns, ", "),
		t.tableName,
		column,
	)

	row := t.db.QueryRowContext(ctx, query, value)
	return t.scan(row)
}

// Find runs b with the table's columns selected and scans every row.
// b must not select columns of its own.
func (t *Table[T]) Find(ctx context.Context, b *Builder) ([]*T, error) {
	query, args, err := b.Select(t.columns...).Build()
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []*T
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List retrieves every row of the table ordered by its primary key.
func (t *Table[T]) List(ctx context.Context) ([]*T, error) {
	return t.Find(ctx, NewQueryBuilder(t.tableName).OrderBy(t.pkColumns...))
}

type scanner interface {
	Scan(dest ...any) error
}

// scan scans a single row into T.
func (t *Table[T]) scan(row scanner) (*T, error) {
	var item T
	val := reflect.ValueOf(&item).Elem()
	dest := make([]interface{}, len(t.columns))

	for i, col := range t.columns {
		dest[i] = val.Field(t.fieldMap[col]).Addr().Interface()
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &item, nil
}

// IsTransactionConflict reports whether err is a write conflict worth
// retrying: a DuckDB transaction conflict or a busy SQLite database.
func IsTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "TransactionContext Error") ||
		strings.Contains(msg, "serialization") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}
