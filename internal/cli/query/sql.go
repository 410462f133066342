package query

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spot-perf/spot/internal/cli/helpers"
	spoterrors "github.com/spot-perf/spot/internal/errors"
)

func newSQLCmd() *cobra.Command {
	var (
		dbPath string
		format string
	)

	supported := []helpers.OutputFormat{helpers.FormatTable, helpers.FormatCSV, helpers.FormatJSON}

	cmd := &cobra.Command{
		Use:   "sql QUERY",
		Short: "Run an ad-hoc SQL query against a run store",
		Long: `Runs a SQL query against a database written by "spot add" and prints the
result. The store is never modified: the query runs in a transaction that
is rolled back.

Tables: attributes (name, datatype, kind, alias, unit), runs (one row per
run with its globals and records) and keyval (attr_id, value, run).

Examples:
  spot query sql --db runs.sqlite "SELECT name, kind FROM attributes"
  spot query sql --db runs.duckdb -o csv "SELECT * FROM runs"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, supported); err != nil {
				return err
			}

			env, err := helpers.NewEnv(cmd)
			if err != nil {
				return err
			}
			path, err := env.StorePath(dbPath)
			if err != nil {
				return err
			}
			st, err := env.OpenStore(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer spoterrors.DeferClose(env.Logger, st, "failed to close store")

			return st.QueryReadOnly(cmd.Context(), args[0], func(rows *sql.Rows) error {
				columns, err := rows.Columns()
				if err != nil {
					return fmt.Errorf("failed to get columns: %w", err)
				}

				switch helpers.OutputFormat(format) {
				case helpers.FormatCSV:
					return printResultsAsCSV(env.Stdout, rows, columns)
				case helpers.FormatJSON:
					return printResultsAsJSON(env.Stdout, rows, columns)
				default:
					return printResultsAsTable(env.Stdout, rows, columns)
				}
			})
		},
	}

	helpers.AddDBFlag(cmd, &dbPath)
	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, supported)

	return cmd
}

// scanRow reads the current row into generic values.
func scanRow(rows *sql.Rows, n int) ([]interface{}, error) {
	values := make([]interface{}, n)
	valuePtrs := make([]interface{}, n)
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}
	return values, nil
}

// printResultsAsTable prints query results in a formatted table.
func printResultsAsTable(out io.Writer, rows *sql.Rows, columns []string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)

	rowCount := 0
	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return err
		}
		for i, val := range values {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, formatValue(val))
		}
		fmt.Fprintln(w)
		rowCount++
	}

	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n(%d rows)\n", rowCount)
	return err
}

// printResultsAsCSV prints query results in CSV format.
func printResultsAsCSV(out io.Writer, rows *sql.Rows, columns []string) error {
	w := csv.NewWriter(out)

	if err := w.Write(columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return err
		}
		record := make([]string, len(columns))
		for i, val := range values {
			record[i] = formatValue(val)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// printResultsAsJSON prints query results as a JSON array of objects.
func printResultsAsJSON(out io.Writer, rows *sql.Rows, columns []string) error {
	results := []map[string]interface{}{}

	for rows.Next() {
		values, err := scanRow(rows, len(columns))
		if err != nil {
			return err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}

	return helpers.WriteJSON(out, results)
}

// formatValue formats a value for display in table or CSV output.
func formatValue(val interface{}) string {
	if val == nil {
		return "NULL"
	}

	switch v := val.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
