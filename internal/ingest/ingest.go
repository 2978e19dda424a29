// Package ingest loads tabular files (CSV, TSV, XLSX) into a data store. It
// infers column types from a small sample, lets the chat model choose
// between an existing table and a new one, creates the table when needed
// and bulk-inserts the rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kartoza/kartoza-nl2sql/internal/llm"
	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// ErrNoRows is returned for files with a header but no data
var ErrNoRows = errors.New("file has no data rows")

// Request selects where a file goes. An empty Table lets the model decide.
type Request struct {
	Table string
	Kind  store.Kind
}

// Result reports a completed ingestion
type Result struct {
	Table   string
	Created bool
	Columns []store.ColumnDef
	Insert  store.InsertResult
	// Message is a human-readable summary of the outcome
	Message string
}

// Ingester loads tables into the configured stores
type Ingester struct {
	stores  store.Registry
	decider *Decider
	log     *slog.Logger
}

// New creates an Ingester. model is the chat model used for target
// decisions.
func New(stores store.Registry, model llm.Model, logger *slog.Logger, timeout time.Duration) *Ingester {
	return &Ingester{
		stores:  stores,
		decider: NewDecider(model, logger, timeout),
		log:     logger,
	}
}

// IngestFile reads path and ingests it
func (in *Ingester) IngestFile(ctx context.Context, path string, req Request) (*Result, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return in.Ingest(ctx, t, req)
}

// Ingest writes t into the store selected by req. Insert failures return
// both a Result describing the failure and the error.
func (in *Ingester) Ingest(ctx context.Context, t *Table, req Request) (*Result, error) {
	if len(t.Rows) == 0 {
		return nil, ErrNoRows
	}

	s, err := in.stores.Get(req.Kind)
	if err != nil {
		return nil, err
	}
	log := in.log.With("store", req.Kind, "source", t.Source)

	defs := InferColumns(t)
	existing, err := s.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	dec, err := in.target(ctx, t, defs, existing, req.Table)
	if err != nil {
		return nil, err
	}

	res := &Result{Table: dec.Table, Columns: defs}
	if dec.Action == ActionCreate {
		if err := s.CreateTable(ctx, dec.Table, defs); err != nil {
			log.Error("ingest: failed to create table", "table", dec.Table, "error", err)
			return nil, fmt.Errorf("create table %s: %w", dec.Table, err)
		}
		res.Created = true
		log.Info("ingest: created table", "table", dec.Table, "columns", len(defs))
	}

	columns := make([]string, len(defs))
	for i, d := range defs {
		columns[i] = d.Name
	}

	res.Insert, err = s.BulkInsert(ctx, dec.Table, columns, ConvertRows(t, defs))
	res.Message = summary(res)
	if err != nil {
		metrics.IngestRowsTotal.WithLabelValues(string(req.Kind), "error").Add(float64(len(t.Rows)))
		log.Error("ingest: bulk insert failed", "table", dec.Table, "error", err)
		return res, err
	}

	metrics.IngestRowsTotal.WithLabelValues(string(req.Kind), "success").Add(float64(res.Insert.RowCount))
	log.Info("ingest: complete", "table", dec.Table, "rows", res.Insert.RowCount, "created", res.Created)
	return res, nil
}

// target resolves an explicit table name against existing tables, or asks
// the model when none was given
func (in *Ingester) target(ctx context.Context, t *Table, defs []store.ColumnDef, existing []string, requested string) (Decision, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return in.decider.Decide(ctx, t, defs, existing)
	}

	for _, e := range existing {
		if strings.EqualFold(e, requested) {
			return Decision{Action: ActionExisting, Table: e}, nil
		}
	}
	name := SanitizeName(requested)
	if name == "" {
		return Decision{}, fmt.Errorf("invalid table name %q", requested)
	}
	return Decision{Action: ActionCreate, Table: name}, nil
}

func summary(r *Result) string {
	msg := r.Insert.Message
	if r.Created {
		msg = fmt.Sprintf("Created table %s with %d columns. %s", r.Table, len(r.Columns), msg)
	}
	return msg
}
