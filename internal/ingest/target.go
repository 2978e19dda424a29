package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/sahilm/fuzzy"

	"github.com/kartoza/kartoza-nl2sql/internal/llm"
	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// Target actions
const (
	ActionExisting = "existing"
	ActionCreate   = "create"
)

// Decision is the model's choice of target table
type Decision struct {
	Action string `json:"action"`
	Table  string `json:"table"`
}

var targetTemplate = template.Must(template.New("target").Parse(heredoc.Doc(`
	A file is being loaded into a database. Decide whether its rows belong in
	one of the existing tables or whether a new table should be created.

	Existing tables:
	{{- range .Existing}}
	- {{.}}
	{{- else}}
	(none)
	{{- end}}

	File: {{.Source}}
	Columns:
	{{- range .Columns}}
	- {{.Name}} ({{.Type}})
	{{- end}}

	Sample rows:
	{{- range .Sample}}
	{{.}}
	{{- end}}

	Reply with a single JSON object and nothing else:
	{"action": "existing", "table": "<existing table name>"} to append to an existing table, or
	{"action": "create", "table": "<new table name>"} to create a new table.
	New table names use lowercase letters, digits and underscores only.
`)))

// Decider asks the chat model where an ingested file should go
type Decider struct {
	model   llm.Model
	log     *slog.Logger
	timeout time.Duration
}

// NewDecider creates a Decider backed by the chat model
func NewDecider(model llm.Model, logger *slog.Logger, timeout time.Duration) *Decider {
	return &Decider{model: model, log: logger, timeout: timeout}
}

// Decide returns the target for t. An "existing" reply is resolved against
// existing with ResolveTable; if nothing matches, a new table is created
// under the sanitized name instead.
func (d *Decider) Decide(ctx context.Context, t *Table, defs []store.ColumnDef, existing []string) (Decision, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := d.model.Complete(ctx, targetPrompt(t, defs, existing))
	metrics.RecordModelCall("ingest_target", time.Since(start), err)
	if err != nil {
		return Decision{}, fmt.Errorf("choose target table: %w", err)
	}

	dec, err := ParseDecision(out)
	if err != nil {
		return Decision{}, err
	}

	if dec.Action == ActionExisting {
		if name, ok := ResolveTable(dec.Table, existing); ok {
			dec.Table = name
			d.log.Info("ingest: appending to existing table", "table", name)
			return dec, nil
		}
		d.log.Warn("ingest: model chose an unknown table, creating it", "table", dec.Table)
		dec.Action = ActionCreate
	}

	dec.Table = SanitizeName(dec.Table)
	if dec.Table == "" {
		dec.Table = defaultTableName(t.Source)
	}
	d.log.Info("ingest: creating new table", "table", dec.Table)
	return dec, nil
}

// ParseDecision reads the first JSON object in the model reply
func ParseDecision(out string) (Decision, error) {
	start := strings.IndexByte(out, '{')
	end := strings.LastIndexByte(out, '}')
	if start < 0 || end < start {
		return Decision{}, fmt.Errorf("no JSON object in model reply %q", strings.TrimSpace(out))
	}

	var dec Decision
	if err := json.Unmarshal([]byte(out[start:end+1]), &dec); err != nil {
		return Decision{}, fmt.Errorf("decode target decision: %w", err)
	}

	dec.Action = strings.ToLower(strings.TrimSpace(dec.Action))
	dec.Table = strings.TrimSpace(dec.Table)
	switch dec.Action {
	case ActionExisting, ActionCreate:
	default:
		return Decision{}, fmt.Errorf("unknown target action %q", dec.Action)
	}
	if dec.Table == "" {
		return Decision{}, errors.New("target decision has no table name")
	}
	return dec, nil
}

// ResolveTable finds name among existing tables: an exact match ignoring
// case first, then the best fuzzy match
func ResolveTable(name string, existing []string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len(existing) == 0 {
		return "", false
	}
	for _, e := range existing {
		if strings.EqualFold(e, name) {
			return e, true
		}
	}

	matches := fuzzy.Find(strings.ToLower(name), lower(existing))
	if len(matches) == 0 {
		return "", false
	}
	return existing[matches[0].Index], true
}

func lower(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func defaultTableName(source string) string {
	base := source
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if name := SanitizeName(base); name != "" {
		return name
	}
	return "imported_data"
}

func targetPrompt(t *Table, defs []store.ColumnDef, existing []string) string {
	sample := t.Rows
	if len(sample) > SampleRows {
		sample = sample[:SampleRows]
	}
	lines := make([]string, len(sample))
	for i, row := range sample {
		lines[i] = strings.Join(row, " | ")
	}

	var sb strings.Builder
	_ = targetTemplate.Execute(&sb, struct {
		Existing []string
		Source   string
		Columns  []store.ColumnDef
		Sample   []string
	}{existing, t.Source, defs, lines})
	return sb.String()
}
