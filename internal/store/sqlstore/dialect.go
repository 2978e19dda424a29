package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// dialect captures what differs between the supported SQL engines
type dialect interface {
	// name is the human readable engine name used in prompts
	name() string
	// driver is the database/sql driver name
	driver() string
	quote(ident string) string
	placeholder(n int) string
	columnType(t store.ColumnType) string
	configure(db *sql.DB)
	listTables(ctx context.Context, db *sql.DB) ([]string, error)
	describe(ctx context.Context, db *sql.DB) ([]tableInfo, error)
	// errorDetail extracts a readable message from a driver error, or ""
	errorDetail(err error) string
}

// bulkInserter is implemented by dialects with a faster load path
type bulkInserter interface {
	bulkInsert(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (int, error)
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "":
		return mysqlDialect{}, nil
	case "postgres", "postgresql", "pg":
		return postgresDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}
}

// tableInfo describes a table for schema rendering
type tableInfo struct {
	Name    string
	Columns []columnInfo
}

// columnInfo describes one column
type columnInfo struct {
	Name       string
	DataType   string
	PrimaryKey bool
	Nullable   bool
	FKTable    string
	FKColumn   string
}

// renderSchema renders tables in the format understood by the synthesis
// prompt, one block per table separated by a blank line.
func renderSchema(tables []tableInfo) string {
	var sb strings.Builder
	for _, t := range tables {
		sb.WriteString("Table: ")
		sb.WriteString(t.Name)
		sb.WriteString("\n")
		for _, c := range t.Columns {
			attrs := []string{c.DataType}
			if c.PrimaryKey {
				attrs = append(attrs, "primary key")
			}
			if c.Nullable {
				attrs = append(attrs, "nullable")
			}
			if c.FKTable != "" {
				attrs = append(attrs, "references "+c.FKTable+"."+c.FKColumn)
			}
			fmt.Fprintf(&sb, "- %s (%s)\n", c.Name, strings.Join(attrs, ", "))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func createTableSQL(d dialect, table string, columns []store.ColumnDef) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%s %s", d.quote(c.Name), d.columnType(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.quote(table), strings.Join(defs, ", "))
}

func insertSQL(d dialect, table string, columns []string) string {
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		names[i] = d.quote(c)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(table), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// genericInserter inserts row by row through a prepared statement in one
// transaction
type genericInserter struct {
	d dialect
}

func (g genericInserter) bulkInsert(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSQL(g.d, table, columns))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// queryStrings runs a single-column query and collects the results
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
