package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/ingest"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProcessor struct {
	records  []pipeline.Record
	question string
	kind     store.Kind
}

func (p *fakeProcessor) Process(_ context.Context, question string, kind store.Kind) iter.Seq[pipeline.Record] {
	p.question, p.kind = question, kind
	return func(yield func(pipeline.Record) bool) {
		for _, r := range p.records {
			if !yield(r) {
				return
			}
		}
	}
}

type fakeIngester struct {
	res *ingest.Result
	err error
	got *ingest.Table
	req ingest.Request
}

func (f *fakeIngester) Ingest(_ context.Context, t *ingest.Table, req ingest.Request) (*ingest.Result, error) {
	f.got, f.req = t, req
	return f.res, f.err
}

type fakeStore struct {
	store.Store
	tables  []string
	connErr error
}

func (s *fakeStore) ListTables(context.Context) ([]string, error) { return s.tables, nil }
func (s *fakeStore) EnsureConnected(context.Context) error { return s.connErr }

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Logger = discardLogger()
	if cfg.Processor == nil {
		cfg.Processor = &fakeProcessor{}
	}
	if cfg.Ingester == nil {
		cfg.Ingester = &fakeIngester{}
	}
	if cfg.Stores == nil {
		cfg.Stores = store.Registry{store.Relational: &fakeStore{tables: []string{"customers"}}}
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestQuery_StreamsRecords(t *testing.T) {
	proc := &fakeProcessor{records: []pipeline.Record{
		{Label: pipeline.LabelQueryNeeded, Query: "SELECT 1;", Answer: "One"},
		{Label: pipeline.LabelQueryNeeded, Query: "SELECT 1;", Answer: "One row."},
	}}
	hist := history.New(t.TempDir(), 10)
	s := newTestServer(t, Config{Processor: proc, History: hist})

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"How many?","store":"mongo"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "How many?", proc.question)
	assert.Equal(t, store.Document, proc.kind)

	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "record", events[0].name)

	var got pipeline.Record
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &got))
	assert.Equal(t, "One row.", got.Answer)
	assert.Equal(t, "done", events[2].name)
	assert.JSONEq(t, `{"records":2}`, events[2].data)

	entries, err := hist.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "One row.", entries[0].Answer)
	assert.Equal(t, "document", entries[0].Store)
}

func TestQuery_BadRequests(t *testing.T) {
	s := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"empty question", `{"question":"  "}`},
		{"unknown store", `{"question":"q","store":"redis"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestIngest_Upload(t *testing.T) {
	ing := &fakeIngester{res: &ingest.Result{
		Table:   "orders",
		Created: true,
		Columns: []store.ColumnDef{{Name: "id", Type: store.TypeInteger}},
		Insert:  store.InsertResult{Status: "success", RowCount: 2, Message: "Successfully inserted 2 rows into orders"},
		Message: "Created table orders with 1 columns. Successfully inserted 2 rows into orders",
	}}
	s := newTestServer(t, Config{Ingester: ing})

	body, ct := multipartBody(t, "orders.csv", "id\n1\n2\n", map[string]string{"table": "orders"})
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, resp.RowCount)
	assert.True(t, resp.Created)
	assert.Equal(t, []map[string]string{{"name": "id", "type": "integer"}}, resp.Columns)

	require.NotNil(t, ing.got)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, ing.got.Rows)
	assert.Equal(t, ingest.Request{Table: "orders", Kind: store.Relational}, ing.req)
}

func TestIngest_Failures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		s := newTestServer(t, Config{})
		body, ct := multipartBody(t, "", "", map[string]string{"table": "x"})
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported format", func(t *testing.T) {
		s := newTestServer(t, Config{})
		body, ct := multipartBody(t, "data.json", "{}", nil)
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("insert failure", func(t *testing.T) {
		ing := &fakeIngester{
			res: &ingest.Result{Table: "t", Insert: store.InsertResult{Status: "error"}, Message: "Failed to insert into t: boom"},
			err: errors.New("boom"),
		}
		s := newTestServer(t, Config{Ingester: ing})
		body, ct := multipartBody(t, "t.csv", "a\n1\n", nil)
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "Failed to insert into t: boom")
	})

	t.Run("store not configured", func(t *testing.T) {
		ing := &fakeIngester{err: store.ErrNotConfigured}
		s := newTestServer(t, Config{Ingester: ing})
		body, ct := multipartBody(t, "t.csv", "a\n1\n", map[string]string{"store": "document"})
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", body)
		req.Header.Set("Content-Type", ct)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTables(t *testing.T) {
	s := newTestServer(t, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"store":"relational","tables":["customers"]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables?store=document", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Config{Stores: store.Registry{
		store.Relational: &fakeStore{},
		store.Document:   &fakeStore{connErr: errors.New("connection refused")},
	}})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","stores":{"relational":"ok","document":"connection refused"}}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})

	// Generate at least one observation
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tables", nil))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kartoza_nl2sql_http_requests_total")
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
