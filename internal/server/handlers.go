package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/ingest"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// QueryRequest is the body of POST /api/query
type QueryRequest struct {
	Question string `json:"question"`
	Store    string `json:"store"`
}

// handleQuery streams pipeline records as server-sent events. Each record
// is sent as a "record" event; the stream ends with a "done" event.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}
	kind, err := s.kind(req.Store)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendEvent := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	started := time.Now()
	var last pipeline.Record
	count := 0
	for rec := range s.cfg.Processor.Process(r.Context(), req.Question, kind) {
		last = rec
		count++
		if err := sendEvent("record", rec); err != nil {
			s.log.Warn("server: client went away", "error", err)
			return
		}
	}
	if r.Context().Err() != nil {
		return
	}
	_ = sendEvent("done", map[string]int{"records": count})

	if s.cfg.History != nil && count > 0 {
		if err := s.cfg.History.Add(history.FromRecord(req.Question, kind, last, started)); err != nil {
			s.log.Warn("server: failed to record history", "error", err)
		}
	}
}

// IngestResponse is the body returned by POST /api/ingest
type IngestResponse struct {
	Status   string              `json:"status"`
	Table    string              `json:"table_name,omitempty"`
	Created  bool                `json:"created"`
	RowCount int                 `json:"row_count"`
	Columns  []map[string]string `json:"columns,omitempty"`
	Message  string              `json:"message"`
}

// handleIngest loads an uploaded file. Form fields: file (required), table
// and store (optional).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}

	kind, err := s.kind(r.FormValue("store"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required")
		return
	}
	defer file.Close()

	table, err := ingest.Read(file, header.Filename)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, ingest.ErrUnsupportedFormat) && !errors.Is(err, ingest.ErrEmptyFile) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	res, err := s.cfg.Ingester.Ingest(r.Context(), table, ingest.Request{
		Table: r.FormValue("table"),
		Kind:  kind,
	})
	if res == nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, ingest.ErrNoRows):
			status = http.StatusBadRequest
		case errors.Is(err, store.ErrNotConfigured):
			status = http.StatusNotFound
		}
		writeJSON(w, status, IngestResponse{Status: "error", Message: err.Error()})
		return
	}

	resp := IngestResponse{
		Status:   res.Insert.Status,
		Table:    res.Table,
		Created:  res.Created,
		RowCount: res.Insert.RowCount,
		Message:  res.Message,
	}
	for _, c := range res.Columns {
		resp.Columns = append(resp.Columns, map[string]string{"name": c.Name, "type": c.Type.String()})
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleTables lists the tables of a store
func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r.URL.Query().Get("store"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.cfg.Stores.Get(kind)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	tables, err := st.ListTables(r.Context())
	if err != nil {
		s.log.Error("server: failed to list tables", "store", kind, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"store": kind, "tables": tables})
}

// handleHealth reports the connection state of every store
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	stores := make(map[string]string, len(s.cfg.Stores))
	for _, kind := range s.cfg.Stores.Kinds() {
		st, _ := s.cfg.Stores.Get(kind)
		if err := st.EnsureConnected(r.Context()); err != nil {
			stores[string(kind)] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		stores[string(kind)] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "stores": stores})
}
