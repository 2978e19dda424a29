package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NoDataFound is the rendering of a document query that matched nothing
const NoDataFound = "No data found."

// MaxRenderedRows caps the rows included in the rendered result text
const MaxRenderedRows = 200

// Result is a materialized query result
type Result struct {
	Kind    Kind
	Columns []string
	Rows    [][]any
	// HasRows is false for statements that do not produce a result set
	HasRows      bool
	RowsAffected int64
}

// Format renders a result as the text handed to the answer model.
//
// Row-producing results render as:
//
//	Total 2 rows
//
//	id | name
//	---------
//	1 | Alice
//	2 | Bob
//
// Statements without a result set report the affected row count, and a
// document query that matched nothing renders as NoDataFound.
func Format(r *Result) string {
	if r == nil {
		return NoDataFound
	}
	if !r.HasRows {
		return fmt.Sprintf("Query executed successfully. Affected rows: %d", r.RowsAffected)
	}
	if r.Kind == Document && len(r.Rows) == 0 {
		return NoDataFound
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Total %d rows\n\n", len(r.Rows))

	header := strings.Join(r.Columns, " | ")
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", len(header)))
	sb.WriteString("\n")

	for i, row := range r.Rows {
		if i >= MaxRenderedRows {
			fmt.Fprintf(&sb, "... and %d more rows\n", len(r.Rows)-MaxRenderedRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = FormatValue(v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}

// FormatValue renders a single cell value
func FormatValue(val any) string {
	if val == nil {
		return "NULL"
	}

	switch v := val.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case sql.NullString:
		if v.Valid {
			return v.String
		}
		return "NULL"
	case sql.NullInt64:
		if v.Valid {
			return strconv.FormatInt(v.Int64, 10)
		}
		return "NULL"
	case sql.NullFloat64:
		if v.Valid {
			return strconv.FormatFloat(v.Float64, 'f', -1, 64)
		}
		return "NULL"
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
