package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

type postgresDialect struct{}

func (postgresDialect) name() string   { return "PostgreSQL" }
func (postgresDialect) driver() string { return "postgres" }

func (postgresDialect) quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) columnType(t store.ColumnType) string {
	switch t {
	case store.TypeInteger:
		return "BIGINT"
	case store.TypeDecimal:
		return "NUMERIC(18,4)"
	case store.TypeDate:
		return "DATE"
	case store.TypeLongText:
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

func (postgresDialect) configure(*sql.DB) {}

// qualifiedName omits the schema for tables in public
func qualifiedName(schema, table string) string {
	if schema == "" || schema == "public" {
		return table
	}
	return schema + "." + table
}

func (postgresDialect) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var schema, table string
		if err := rows.Scan(&schema, &table); err != nil {
			return nil, err
		}
		names = append(names, qualifiedName(schema, table))
	}
	return names, rows.Err()
}

// describe harvests user tables and their columns, including primary and
// foreign key constraints
func (postgresDialect) describe(ctx context.Context, db *sql.DB) ([]tableInfo, error) {
	query := `
		SELECT
			c.table_schema,
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(tc.constraint_type = 'PRIMARY KEY', false) AS is_pk,
			COALESCE(ccu.table_name, '') AS fk_table,
			COALESCE(ccu.column_name, '') AS fk_column
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema
			AND t.table_name = c.table_name
			AND t.table_type = 'BASE TABLE'
		LEFT JOIN information_schema.key_column_usage kcu
			ON c.table_schema = kcu.table_schema
			AND c.table_name = kcu.table_name
			AND c.column_name = kcu.column_name
		LEFT JOIN information_schema.table_constraints tc
			ON kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
		LEFT JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.constraint_type = 'FOREIGN KEY'
		WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []tableInfo
	seen := make(map[string]bool)

	for rows.Next() {
		var (
			schema, table string
			col           columnInfo
		)
		if err := rows.Scan(
			&schema, &table, &col.Name, &col.DataType, &col.Nullable,
			&col.PrimaryKey, &col.FKTable, &col.FKColumn,
		); err != nil {
			return nil, err
		}

		name := qualifiedName(schema, table)
		if n := len(tables); n == 0 || tables[n-1].Name != name {
			tables = append(tables, tableInfo{Name: name})
		}

		// Avoid duplicates from the constraint joins, keeping the most
		// informative row for each column
		key := name + "." + col.Name
		last := &tables[len(tables)-1]
		if seen[key] {
			prev := &last.Columns[len(last.Columns)-1]
			prev.PrimaryKey = prev.PrimaryKey || col.PrimaryKey
			if prev.FKTable == "" {
				prev.FKTable, prev.FKColumn = col.FKTable, col.FKColumn
			}
			continue
		}
		seen[key] = true
		last.Columns = append(last.Columns, col)
	}

	return tables, rows.Err()
}

// bulkInsert streams rows through COPY FROM STDIN
func (postgresDialect) bulkInsert(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	copySQL := pq.CopyIn(table, columns...)
	if schema, name, ok := strings.Cut(table, "."); ok {
		copySQL = pq.CopyInSchema(schema, name, columns...)
	}

	stmt, err := tx.PrepareContext(ctx, copySQL)
	if err != nil {
		return 0, err
	}

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	// Flush buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, err
	}
	if err := stmt.Close(); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (postgresDialect) errorDetail(err error) string {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return ""
	}

	parts := []string{fmt.Sprintf("ERROR: %s (SQLSTATE %s)", pqErr.Message, pqErr.Code)}
	if pqErr.Detail != "" {
		parts = append(parts, "DETAIL: "+pqErr.Detail)
	}
	if pqErr.Hint != "" {
		parts = append(parts, "HINT: "+pqErr.Hint)
	}
	if pqErr.Position != "" {
		parts = append(parts, "POSITION: "+pqErr.Position)
	}
	return strings.Join(parts, " ")
}
