// Package server exposes the query pipeline and file ingestion over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kartoza/kartoza-nl2sql/internal/history"
	"github.com/kartoza/kartoza-nl2sql/internal/ingest"
	"github.com/kartoza/kartoza-nl2sql/internal/metrics"
	"github.com/kartoza/kartoza-nl2sql/internal/pipeline"
	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

// DefaultMaxUploadBytes bounds ingestion uploads
const DefaultMaxUploadBytes = 32 << 20

// Processor answers questions as a stream of records
type Processor interface {
	Process(ctx context.Context, question string, kind store.Kind) iter.Seq[pipeline.Record]
}

// Ingester loads uploaded tables into a store
type Ingester interface {
	Ingest(ctx context.Context, t *ingest.Table, req ingest.Request) (*ingest.Result, error)
}

// Config holds the server dependencies
type Config struct {
	Addr      string
	Logger    *slog.Logger
	Processor Processor
	Ingester  Ingester
	Stores    store.Registry
	// History, when set, records every answered question
	History        *history.Store
	MaxUploadBytes int64
	// DefaultKind is used when a request names no store
	DefaultKind store.Kind
}

// Validate checks that all required dependencies are present
func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Processor == nil {
		return errors.New("processor is required")
	}
	if c.Ingester == nil {
		return errors.New("ingester is required")
	}
	if len(c.Stores) == 0 {
		return errors.New("at least one store is required")
	}
	return nil
}

// Server is the HTTP API
type Server struct {
	cfg    Config
	log    *slog.Logger
	router chi.Router
}

// New creates a new Server
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.DefaultKind == "" {
		cfg.DefaultKind = store.Relational
	}

	s := &Server{cfg: cfg, log: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/ingest", s.handleIngest)
		r.Get("/tables", s.handleTables)
	})

	s.router = r
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("server: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// kind resolves the store named in a request
func (s *Server) kind(name string) (store.Kind, error) {
	if name == "" {
		return s.cfg.DefaultKind, nil
	}
	return store.ParseKind(name)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
