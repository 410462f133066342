package sqldb

import (
	"fmt"
	"strings"
)

// Builder constructs SELECT queries with a fluent API.
type Builder struct {
	table   string
	columns []string
	where   []whereClause
	groupBy []string
	orderBy []orderClause
	limit   int
}

// whereClause represents a WHERE condition.
type whereClause struct {
	expr string
	args []interface{}
}

// orderClause represents an ORDER BY clause.
type orderClause struct {
	column string
	desc   bool
}

// NewQueryBuilder creates a new query builder for the specified table.
// The table may be a join expression.
func NewQueryBuilder(table string) *Builder {
	return &Builder{table: table}
}

// Select specifies the columns to retrieve.
// Supports column names, aggregates, and aliases.
// Examples:
//
//	Select("id", "launchdate")
//	Select("MAX(id) AS last_id")
func (b *Builder) Select(columns ...string) *Builder {
	b.columns = append(b.columns, columns...)
	return b
}

// Where adds a custom WHERE clause with optional arguments.
// Multiple Where() calls are combined with AND.
// Examples:
//
//	Where("source_file = ?", path)
//	Where("launchdate BETWEEN ? AND ?", 1000, 2000)
//	Where("globals IS NOT NULL")
func (b *Builder) Where(expr string, args ...interface{}) *Builder {
	b.where = append(b.where, whereClause{
		expr: expr,
		args: args,
	})
	return b
}

// Eq adds an equality filter.
// Generates: WHERE column = ?
// If value is empty string, the filter is skipped (wildcard behavior).
func (b *Builder) Eq(column string, value interface{}) *Builder {
	if str, ok := value.(string); ok && str == "" {
		return b
	}
	return b.Where(fmt.Sprintf("%s = ?", column), value)
}

// In adds an IN clause.
// Generates: WHERE column IN (?, ?, ...)
// If values is empty, the filter is skipped.
func (b *Builder) In(column string, values ...interface{}) *Builder {
	if len(values) == 0 {
		return b
	}
	placeholders := make([]string, len(values))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	expr := fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
	return b.Where(expr, values...)
}

// Gt adds a > comparison.
// Generates: WHERE column > ?
func (b *Builder) Gt(column string, value interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s > ?", column), value)
}

// Lte adds a <= comparison.
// Generates: WHERE column <= ?
func (b *Builder) Lte(column string, value interface{}) *Builder {
	return b.Where(fmt.Sprintf("%s <= ?", column), value)
}

// GroupBy adds GROUP BY columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// OrderBy adds ORDER BY clauses.
// Use "-" prefix for DESC order.
// Examples:
//
//	OrderBy("id")              // ASC
//	OrderBy("-launchdate")     // DESC
//	OrderBy("run", "-attr_id") // run ASC, attr_id DESC
func (b *Builder) OrderBy(columns ...string) *Builder {
	for _, col := range columns {
		desc := false
		if strings.HasPrefix(col, "-") {
			desc = true
			col = col[1:]
		}
		b.orderBy = append(b.orderBy, orderClause{
			column: col,
			desc:   desc,
		})
	}
	return b
}

// Limit sets the maximum number of rows to return.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build constructs the SQL query and returns the query string and arguments.
func (b *Builder) Build() (string, []interface{}, error) {
	if b.table == "" {
		return "", nil, fmt.Errorf("table name is required")
	}

	var query strings.Builder
	args := make([]interface{}, 0)

	query.WriteString("SELECT ")
	if len(b.columns) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(strings.Join(b.columns, ", "))
	}

	query.WriteString(" FROM ")
	query.WriteString(b.table)

	if len(b.where) > 0 {
		query.WriteString(" WHERE ")
		exprs := make([]string, len(b.where))
		for i, w := range b.where {
			exprs[i] = w.expr
			args = append(args, w.args...)
		}
		query.WriteString(strings.Join(exprs, " AND "))
	}

	if len(b.groupBy) > 0 {
		query.WriteString(" GROUP BY ")
		query.WriteString(strings.Join(b.groupBy, ", "))
	}

	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		orderParts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			if o.desc {
				orderParts[i] = o.column + " DESC"
			} else {
				orderParts[i] = o.column
			}
		}
		query.WriteString(strings.Join(orderParts, ", "))
	}

	if b.limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}

	return query.String(), args, nil
}

// MustBuild builds the query and panics on error.
// Useful for tests and cases where query construction should never fail.
func (b *Builder) MustBuild() (string, []interface{}) {
	q, args, err := b.Build()
	if err != nil {
		panic(err)
	}
	return q, args
}
