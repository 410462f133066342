// Package sqldb provides the SQL plumbing behind the run store: opening
// DuckDB or SQLite databases, dialect specific DDL, a small ORM and a query
// builder.
//
// # ORM
//
// The Table type maps a struct to a table through `sql` tags:
//
//	type attributeRow struct {
//	    ID   int64  `sql:"attr_id,pk,auto"`
//	    Name string `sql:"name,unique"`
//	}
//
//	table := sqldb.NewTable[attributeRow](tx, "attributes")
//	err := table.InsertIfAbsent(ctx, &attributeRow{Name: "launchdate"})
//
// Tag options: pk marks the primary key, auto marks a column generated by
// the database (left out of INSERT statements and read back with
// RETURNING), unique marks the conflict target used by InsertIfAbsent.
//
// # Query Builder
//
// The builder generates SELECT statements only and does not execute them:
//
//	query, args, err := sqldb.NewQueryBuilder("runs").
//	    Select("id").
//	    Gt("launchdate", since).
//	    OrderBy("id").
//	    Build()
//
//	rows, err := db.QueryContext(ctx, query, args...)
//
// Both supported engines accept "?" placeholders, so generated SQL is
// shared between dialects.
package sqldb
