// Package store defines the data-store adapter contract shared by the
// relational and document backends, together with the text rendering of
// query results that is handed to the answer model.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies which family of data store a question targets
type Kind string

const (
	// Relational is a SQL database (MySQL, PostgreSQL or SQLite)
	Relational Kind = "relational"
	// Document is a MongoDB database
	Document Kind = "document"
)

// ParseKind parses a store kind from user input. Empty input selects the
// relational store.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "relational", "sql", "mysql", "postgres", "postgresql", "sqlite":
		return Relational, nil
	case "document", "mongo", "mongodb", "nosql":
		return Document, nil
	default:
		return "", fmt.Errorf("unknown store kind %q", s)
	}
}

// String returns the kind name
func (k Kind) String() string {
	return string(k)
}

var (
	// ErrNotConfigured is returned when no store is configured for a kind
	ErrNotConfigured = errors.New("store not configured")
	// ErrNotConnected is returned when a connection could not be established
	ErrNotConnected = errors.New("store not connected")
)

// ColumnType is the storage class inferred for an ingested column
type ColumnType int

const (
	TypeShortText ColumnType = iota
	TypeLongText
	TypeInteger
	TypeDecimal
	TypeDate
)

// String returns a readable name for the column type
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeDate:
		return "date"
	case TypeLongText:
		return "long text"
	default:
		return "short text"
	}
}

// ColumnDef describes a column to create
type ColumnDef struct {
	Name string
	Type ColumnType
}

// InsertResult reports the outcome of a bulk insert
type InsertResult struct {
	Status    string `json:"status"`
	Operation string `json:"operation"`
	Table     string `json:"table_name"`
	RowCount  int    `json:"row_count"`
	Message   string `json:"message"`
}

// Store is implemented by every data-store adapter. Implementations must be
// safe for concurrent use; the underlying connection handle is established
// lazily and shared by all callers.
type Store interface {
	// Kind reports which family of store this is
	Kind() Kind
	// Dialect names the query language variant, e.g. "MySQL" or "MongoDB"
	Dialect() string
	// EnsureConnected establishes the shared handle on first use and
	// health-checks it on every later call, reconnecting if needed.
	EnsureConnected(ctx context.Context) error
	// Schema returns a textual description of tables/collections and columns
	Schema(ctx context.Context) (string, error)
	// Execute runs a query and returns its materialized result. Failures are
	// reported as *ExecutionError.
	Execute(ctx context.Context, query string) (*Result, error)
	// ListTables returns the names of user tables or collections
	ListTables(ctx context.Context) ([]string, error)
	// CreateTable creates a table (or collection) with the given columns
	CreateTable(ctx context.Context, table string, columns []ColumnDef) error
	// BulkInsert writes rows into table. A nil cell is stored as NULL.
	BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (InsertResult, error)
	// Close releases the shared handle
	Close() error
}

// Registry maps store kinds to configured adapters
type Registry map[Kind]Store

// Get returns the store configured for kind
func (r Registry) Get(kind Kind) (Store, error) {
	s, ok := r[kind]
	if !ok || s == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, kind)
	}
	return s, nil
}

// Kinds returns the configured kinds in a stable order
func (r Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Close closes every store in the registry
func (r Registry) Close() error {
	var errs []error
	for _, s := range r {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SplitSchema indexes a rendered schema by table or collection name. Blocks
// are separated by blank lines and start with "Table: " or "Collection: ".
func SplitSchema(schema string) map[string]string {
	blocks := make(map[string]string)
	for _, block := range strings.Split(schema, "\n\n") {
		block = strings.TrimSpace(block)
		first, _, _ := strings.Cut(block, "\n")
		for _, prefix := range []string{"Table: ", "Collection: "} {
			if name, ok := strings.CutPrefix(first, prefix); ok {
				blocks[strings.TrimSpace(name)] = block
				break
			}
		}
	}
	return blocks
}
