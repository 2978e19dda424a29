// Package metrics holds the Prometheus collectors for the pipeline, the
// ingestion flow and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kartoza_nl2sql_build_info",
			Help: "Build information of kartoza-nl2sql",
		},
		[]string{"version"},
	)

	PipelineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kartoza_nl2sql_pipeline_requests_total",
			Help: "Total number of questions processed, by store kind and outcome",
		},
		[]string{"store", "outcome"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kartoza_nl2sql_pipeline_duration_seconds",
			Help:    "Duration of a full question resolution, including the streamed answer",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"store"},
	)

	ExecutionAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kartoza_nl2sql_execution_attempts",
			Help:    "Number of execution attempts needed per resolved query",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
		[]string{"store", "state"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kartoza_nl2sql_model_call_duration_seconds",
			Help:    "Duration of model calls by pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage", "status"},
	)

	IngestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kartoza_nl2sql_ingest_rows_total",
			Help: "Total number of rows written by file ingestion",
		},
		[]string{"store", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kartoza_nl2sql_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kartoza_nl2sql_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kartoza_nl2sql_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// RecordModelCall records the duration of a model call for a pipeline stage
func RecordModelCall(stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ModelCallDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
