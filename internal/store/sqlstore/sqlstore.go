// Package sqlstore implements store.Store on top of database/sql for MySQL,
// PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// Config holds the connection settings for a relational store
type Config struct {
	// Driver is one of "mysql", "postgres" or "sqlite"
	Driver string
	// DSN is the driver-specific data source name
	DSN string
	// ConnectAttempts bounds the retries when opening the connection
	ConnectAttempts uint64
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
}

// Store is a relational store.Store. The *sql.DB handle is opened lazily on
// first use and shared by all callers.
type Store struct {
	cfg     Config
	dialect dialect
	log     *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New creates a relational store. No connection is made until the first call
// that needs one.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s: empty DSN", cfg.Driver)
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: cfg, dialect: d, log: logger}, nil
}

// NewWithDB wraps an already open handle. It is used with sqlmock and with
// callers that manage the pool themselves.
func NewWithDB(db *sql.DB, driver string, logger *slog.Logger) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cfg: Config{Driver: driver}, dialect: d, log: logger, db: db}, nil
}

// Kind reports store.Relational
func (s *Store) Kind() store.Kind {
	return store.Relational
}

// Dialect returns the SQL dialect name used in prompts
func (s *Store) Dialect() string {
	return s.dialect.name()
}

// EnsureConnected opens the shared handle if needed and pings it. A handle
// that fails its health check is discarded and reopened.
func (s *Store) EnsureConnected(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.PingContext(ctx)
		if err == nil {
			return s.db, nil
		}
		if s.cfg.DSN == "" {
			return nil, fmt.Errorf("%w: %v", store.ErrNotConnected, err)
		}
		s.log.Warn("sqlstore: health check failed, reconnecting", "driver", s.cfg.Driver, "error", err)
		_ = s.db.Close()
		s.db = nil
	}

	var db *sql.DB
	op := func() error {
		candidate, err := sql.Open(s.dialect.driver(), s.cfg.DSN)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := candidate.PingContext(ctx); err != nil {
			_ = candidate.Close()
			return err
		}
		db = candidate
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.ConnectAttempts-1),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.log.Warn("sqlstore: connect failed, retrying", "driver", s.cfg.Driver, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrNotConnected, s.cfg.Driver, err)
	}

	if s.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	}
	if s.cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(s.cfg.ConnMaxIdleTime)
	}
	s.dialect.configure(db)

	s.log.Info("sqlstore: connected", "driver", s.cfg.Driver)
	s.db = db
	return db, nil
}

// Schema describes every user table as
//
//	Table: name
//	- column (type, primary key, nullable)
func (s *Store) Schema(ctx context.Context) (string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return "", err
	}
	tables, err := s.dialect.describe(ctx, db)
	if err != nil {
		return "", fmt.Errorf("describe %s schema: %w", s.dialect.name(), err)
	}
	return renderSchema(tables), nil
}

// Execute runs query. Statements that produce a result set are materialized;
// others report the affected row count.
func (s *Store) Execute(ctx context.Context, query string) (*store.Result, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	if !returnsRows(query) {
		res, err := db.ExecContext(ctx, query)
		if err != nil {
			return nil, s.executionError(query, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = 0
		}
		return &store.Result{Kind: store.Relational, RowsAffected: affected}, nil
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.executionError(query, err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, s.executionError(query, err)
	}
	return result, nil
}

func (s *Store) executionError(query string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return store.NewExecutionError(query, err, "query timed out")
	}
	return store.NewExecutionError(query, err, s.dialect.errorDetail(err))
}

// ListTables returns user table names in alphabetical order
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	return s.dialect.listTables(ctx, db)
}

// CreateTable creates table with the dialect's mapping of each column type
func (s *Store) CreateTable(ctx context.Context, table string, columns []store.ColumnDef) error {
	if len(columns) == 0 {
		return fmt.Errorf("create table %s: no columns", table)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	ddl := createTableSQL(s.dialect, table, columns)
	s.log.Debug("sqlstore: creating table", "table", table, "ddl", ddl)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return store.NewExecutionError(ddl, err, s.dialect.errorDetail(err))
	}
	return nil
}

// BulkInsert writes rows inside a single transaction
func (s *Store) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (store.InsertResult, error) {
	result := store.InsertResult{Operation: "insert", Table: table}

	db, err := s.conn(ctx)
	if err != nil {
		return failedInsert(result, err), err
	}

	inserter, ok := s.dialect.(bulkInserter)
	if !ok {
		inserter = genericInserter{d: s.dialect}
	}

	n, err := inserter.bulkInsert(ctx, db, table, columns, rows)
	if err != nil {
		err = store.NewExecutionError("INSERT INTO "+table, err, s.dialect.errorDetail(err))
		return failedInsert(result, err), err
	}

	result.Status = "success"
	result.RowCount = n
	result.Message = fmt.Sprintf("Successfully inserted %d rows into %s", n, table)
	s.log.Info("sqlstore: bulk insert complete", "table", table, "rows", n)
	return result, nil
}

func failedInsert(r store.InsertResult, err error) store.InsertResult {
	r.Status = "error"
	r.Message = fmt.Sprintf("Failed to insert into %s: %v", r.Table, err)
	return r
}

// Close closes the shared handle
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// rowKeywords are leading keywords of statements that produce a result set
var rowKeywords = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"describe": true,
	"desc":     true,
	"explain":  true,
	"pragma":   true,
	"values":   true,
	"table":    true,
	// stored procedures may return result sets; a call without one is
	// reported as a statement by scanRows
	"call":    true,
	"exec":    true,
	"execute": true,
}

// returnsRows guesses whether a statement produces a result set. Leading
// comments and parentheses are skipped.
func returnsRows(query string) bool {
	q := stripLeadingComments(query)
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimRight(fields[0], ";("))
	if rowKeywords[first] {
		return true
	}
	return strings.Contains(strings.ToLower(q), " returning ")
}

// stripLeadingComments drops whitespace, "(", "-- ..." lines and "/* */"
// blocks from the start of query
func stripLeadingComments(query string) string {
	q := query
	for {
		q = strings.TrimLeft(q, " \t\r\n(")
		switch {
		case strings.HasPrefix(q, "--"), strings.HasPrefix(q, "#"):
			end := strings.IndexByte(q, '\n')
			if end < 0 {
				return ""
			}
			q = q[end+1:]
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q, "*/")
			if end < 0 {
				return ""
			}
			q = q[end+2:]
		default:
			return q
		}
	}
}

func scanRows(rows *sql.Rows) (*store.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		// e.g. a procedure call without a result set
		return &store.Result{Kind: store.Relational}, nil
	}

	result := &store.Result{Kind: store.Relational, Columns: columns, HasRows: true}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	return result, rows.Err()
}
