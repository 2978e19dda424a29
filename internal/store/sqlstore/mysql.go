package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

type mysqlDialect struct{}

func (mysqlDialect) name() string   { return "MySQL" }
func (mysqlDialect) driver() string { return "mysql" }

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) placeholder(int) string { return "?" }

func (mysqlDialect) columnType(t store.ColumnType) string {
	switch t {
	case store.TypeInteger:
		return "BIGINT"
	case store.TypeDecimal:
		return "DECIMAL(18,4)"
	case store.TypeDate:
		return "DATE"
	case store.TypeLongText:
		return "TEXT"
	default:
		return "VARCHAR(255)"
	}
}

func (mysqlDialect) configure(*sql.DB) {}

func (mysqlDialect) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
}

func (mysqlDialect) describe(ctx context.Context, db *sql.DB) ([]tableInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			c.table_name,
			c.column_name,
			c.column_type,
			c.column_key = 'PRI' AS is_pk,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(k.referenced_table_name, '') AS fk_table,
			COALESCE(k.referenced_column_name, '') AS fk_column
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema
			AND t.table_name = c.table_name
			AND t.table_type = 'BASE TABLE'
		LEFT JOIN information_schema.key_column_usage k
			ON k.table_schema = c.table_schema
			AND k.table_name = c.table_name
			AND k.column_name = c.column_name
			AND k.referenced_table_name IS NOT NULL
		WHERE c.table_schema = DATABASE()
		ORDER BY c.table_name, c.ordinal_position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []tableInfo
	for rows.Next() {
		var (
			table string
			col   columnInfo
		)
		if err := rows.Scan(&table, &col.Name, &col.DataType, &col.PrimaryKey, &col.Nullable, &col.FKTable, &col.FKColumn); err != nil {
			return nil, err
		}
		if n := len(tables); n == 0 || tables[n-1].Name != table {
			tables = append(tables, tableInfo{Name: table})
		}
		last := &tables[len(tables)-1]
		// A column with several constraints appears once per constraint
		if n := len(last.Columns); n > 0 && last.Columns[n-1].Name == col.Name {
			continue
		}
		last.Columns = append(last.Columns, col)
	}
	return tables, rows.Err()
}

func (mysqlDialect) errorDetail(err error) string {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		state := strings.TrimRight(string(myErr.SQLState[:]), "\x00")
		if state == "" {
			return fmt.Sprintf("Error %d: %s", myErr.Number, myErr.Message)
		}
		return fmt.Sprintf("Error %d (%s): %s", myErr.Number, state, myErr.Message)
	}
	return ""
}

// MySQLDSN builds a DSN for the go-sql-driver/mysql driver
func MySQLDSN(host string, port int, user, password, database string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.MultiStatements = false
	return cfg.FormatDSN()
}
