package engine

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Result is a fully materialized result set.
type Result struct {
	columns []string
	rows    [][]any
}

// collect drains and closes rows.
func collect(rows *sql.Rows) (*Result, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapErr("read columns", err)
	}

	res := &Result{columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapErr("scan row", err)
		}
		res.rows = append(res.rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate rows", err)
	}
	return res, nil
}

// Columns returns the column names in select order.
func (r *Result) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// NumberOfRows returns the number of rows in the result.
func (r *Result) NumberOfRows() int { return len(r.rows) }

// Row returns the values of row i.
func (r *Result) Row(i int) []any {
	if i < 0 || i >= len(r.rows) {
		return nil
	}
	return r.rows[i]
}

func (r *Result) columnIndex(column string) int {
	for i, c := range r.columns {
		if c == column {
			return i
		}
	}
	return -1
}

// ValueAt returns the value of column in row i, or nil when either is out of
// range.
func (r *Result) ValueAt(i int, column string) any {
	c := r.columnIndex(column)
	if c < 0 || i < 0 || i >= len(r.rows) {
		return nil
	}
	return r.rows[i][c]
}

// ValuesForColumn returns every value of column in row order.
func (r *Result) ValuesForColumn(column string) []any {
	c := r.columnIndex(column)
	if c < 0 {
		return nil
	}
	out := make([]any, len(r.rows))
	for i, row := range r.rows {
		out[i] = row[c]
	}
	return out
}

// StringsForColumn returns the text values of column, skipping NULLs.
func (r *Result) StringsForColumn(column string) []string {
	values := r.ValuesForColumn(column)
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case []byte:
			out = append(out, string(x))
		case nil:
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	return out
}

// FirstValue returns the first column of the first row.
func (r *Result) FirstValue() any {
	if len(r.rows) == 0 || len(r.columns) == 0 {
		return nil
	}
	return r.rows[0][0]
}

// Records returns the rows as column-name keyed maps.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, len(r.rows))
	for i, row := range r.rows {
		rec := make(map[string]any, len(r.columns))
		for c, name := range r.columns {
			rec[name] = row[c]
		}
		out[i] = rec
	}
	return out
}

// JSONDescription renders the result as an indented JSON array of records.
func (r *Result) JSONDescription() (string, error) {
	b, err := json.MarshalIndent(r.Records(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("engine: marshal result: %w", err)
	}
	return string(b), nil
}

// WriteToFile writes the JSON description of the result to path.
func (r *Result) WriteToFile(path string) error {
	desc, err := r.JSONDescription()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(desc), 0644); err != nil {
		return fmt.Errorf("engine: write result to %s: %w", path, err)
	}
	return nil
}
