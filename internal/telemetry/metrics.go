// Package telemetry provides application-level observability for GroosHub.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started in main.go:
//
//	GET http(s)://<host>:<GROOS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is NOT served by the Gin router, keeping the
// scrape path off the public ingress and out of the rate-limiting middleware.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as project or chat IDs.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// AI metrics.
//
// ModelCallsTotal counts upstream model invocations by provider ("googleai",
// "openai", "anthropic", "xai"), kind ("chat", "classify", "embed"), and
// outcome ("ok", "error", "quota_exceeded"). Quota rejections are counted here
// rather than in HTTP metrics because a single chat request may be rejected
// before any route-level error is visible.
//
// Example PromQL:
//   - Model error rate: sum(rate(ai_model_calls_total{outcome="error"}[5m])) / sum(rate(ai_model_calls_total[5m]))
//   - Calls by provider: sum by (provider) (rate(ai_model_calls_total[1h]))
var (
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_model_calls_total",
			Help: "Total number of AI model calls, by provider, kind, and outcome.",
		},
		[]string{"provider", "kind", "outcome"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_model_call_duration_seconds",
			Help:    "Histogram of AI model call latencies, by provider and kind.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "kind"},
	)
)

// RAG / indexing metrics.
var (
	DocumentsIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_indexed_total",
			Help: "Total number of files processed by the RAG indexer, by outcome (ok, error).",
		},
		[]string{"outcome"},
	)

	ChunksStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "document_chunks_stored_total",
			Help: "Total number of embedded document chunks written to the vector index.",
		},
	)
)

// File storage metrics, labelled by backend so a misbehaving cloud backend is
// distinguishable from local disk.
var (
	FileUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "file_uploads_total",
			Help: "Total number of file uploads, by storage backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	FileUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "file_upload_bytes_total",
			Help: "Total bytes accepted through file uploads.",
		},
	)
)

// LCASnapshotsComputedTotal counts LCA snapshot computations.
var LCASnapshotsComputedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "lca_snapshots_computed_total",
		Help: "Total number of LCA snapshot computations performed.",
	},
)

// DBOpenConnections is sampled by StartDBStatsCollector rather than per-request
// to avoid the overhead of sql.DB.Stats() on the hot path.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits cleanly when the database becomes unreachable (db.Ping fails),
// which happens automatically when the application shuts down and defers db.Close().
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
