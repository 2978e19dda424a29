package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

type sqliteDialect struct{}

func (sqliteDialect) name() string   { return "SQLite" }
func (sqliteDialect) driver() string { return "sqlite" }

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) columnType(t store.ColumnType) string {
	switch t {
	case store.TypeInteger:
		return "INTEGER"
	case store.TypeDecimal:
		return "NUMERIC"
	case store.TypeDate:
		return "DATE"
	default:
		return "TEXT"
	}
}

// configure serializes access; an in-memory database only exists on the
// connection that created it
func (sqliteDialect) configure(db *sql.DB) {
	db.SetMaxOpenConns(1)
}

func (sqliteDialect) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
}

func (d sqliteDialect) describe(ctx context.Context, db *sql.DB) ([]tableInfo, error) {
	names, err := d.listTables(ctx, db)
	if err != nil {
		return nil, err
	}

	tables := make([]tableInfo, 0, len(names))
	for _, name := range names {
		cols, err := d.columns(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, tableInfo{Name: name, Columns: cols})
	}
	return tables, nil
}

func (d sqliteDialect) columns(ctx context.Context, db *sql.DB, table string) ([]columnInfo, error) {
	fks, err := d.foreignKeys(ctx, db, table)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+d.quote(table)+")")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []columnInfo
	for rows.Next() {
		var (
			cid      int
			col      columnInfo
			notNull  bool
			defValue sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &col.Name, &col.DataType, &notNull, &defValue, &pk); err != nil {
			return nil, err
		}
		if col.DataType == "" {
			col.DataType = "ANY"
		}
		col.PrimaryKey = pk > 0
		col.Nullable = !notNull && !col.PrimaryKey
		if fk, ok := fks[col.Name]; ok {
			col.FKTable, col.FKColumn = fk[0], fk[1]
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (d sqliteDialect) foreignKeys(ctx context.Context, db *sql.DB, table string) (map[string][2]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(map[string][2]string)
	for rows.Next() {
		var from, ref string
		var to sql.NullString
		if err := rows.Scan(&from, &ref, &to); err != nil {
			return nil, err
		}
		fks[from] = [2]string{ref, to.String}
	}
	return fks, rows.Err()
}

func (sqliteDialect) errorDetail(error) string { return "" }
