package sqldb

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	duckdbDriver "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

// Dialect names a supported SQL engine.
type Dialect string

const (
	// DuckDB is the embedded analytical engine used by default.
	DuckDB Dialect = "duckdb"
	// SQLite is the embedded engine used by the original Spot databases.
	SQLite Dialect = "sqlite"
)

// sqlitePragmas are applied to every pooled SQLite connection.
var sqlitePragmas = []string{
	"busy_timeout(10000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// ParseDialect maps a driver name from configuration to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "duckdb", "":
		return DuckDB, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// DialectForPath picks the dialect for a database file by extension.
// ".duckdb" files are DuckDB and ".sqlite" files are SQLite; any other
// extension uses fallback.
func DialectForPath(path string, fallback Dialect) Dialect {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".duckdb":
		return DuckDB
	case ".sqlite", ".sqlite3":
		return SQLite
	default:
		return fallback
	}
}

// DB is an open database together with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	Path    string
}

// Open opens the database at path. An empty path or ":memory:" opens an
// in-memory database.
func Open(dialect Dialect, path string) (*DB, error) {
	switch dialect {
	case DuckDB:
		dsn := path
		if dsn == ":memory:" {
			dsn = ""
		}
		connector, err := duckdbDriver.NewConnector(dsn, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb database %s: %w", path, err)
		}
		return &DB{DB: sql.OpenDB(connector), Dialect: dialect, Path: path}, nil

	case SQLite:
		inMemory := path == "" || path == ":memory:"
		dsn := path
		if inMemory {
			dsn = ":memory:"
		}
		params := make([]string, 0, len(sqlitePragmas))
		for _, p := range sqlitePragmas {
			params = append(params, "_pragma="+p)
		}
		db, err := sql.Open("sqlite", dsn+"?"+strings.Join(params, "&"))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
		}
		// Every connection to :memory: is a separate database.
		if inMemory {
			db.SetMaxOpenConns(1)
		}
		return &DB{DB: db, Dialect: dialect, Path: path}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", dialect)
	}
}

// AutoIncrement returns the statements to run before creating table and the
// column definition of its generated integer primary key.
func (d Dialect) AutoIncrement(table, column string) (pre []string, def string) {
	if d == SQLite {
		return nil, column + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	seq := fmt.Sprintf("seq_%s_%s", table, column)
	return []string{fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", seq)},
		fmt.Sprintf("%s BIGINT PRIMARY KEY DEFAULT nextval('%s')", column, seq)
}
