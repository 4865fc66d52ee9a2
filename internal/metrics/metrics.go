// Package metrics holds the Prometheus collectors for the sync pipeline and
// the HTTP API.
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
	// FetchAttempts counts tariff API attempts by result (ok, error, permanent).
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_fetch_attempts_total",
			Help: "Tariff API request attempts",
		},
		[]string{"result"},
	)

	// ItemsDropped counts warehouse entries that failed to normalize.
	ItemsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariff_fetch_items_dropped_total",
		Help: "Warehouse entries dropped during normalization",
	})

	// RowsUpserted counts rows written by the store.
	RowsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariff_rows_upserted_total",
		Help: "Tariff records inserted or merged",
	})

	// SnapshotFallbacks counts snapshot reads served by the fallback query.
	SnapshotFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariff_snapshot_fallbacks_total",
		Help: "Snapshot reads that used the recent-rows fallback",
	})

	// TaskRuns counts scheduled or manual task invocations by task and status.
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_task_runs_total",
			Help: "Task invocations by outcome",
		},
		[]string{"task", "status"},
	)

	// TaskDuration observes task invocation latency.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tariff_task_duration_seconds",
			Help:    "Task invocation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// ExportDestinations counts per-destination export outcomes.
	ExportDestinations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tariff_export_destinations_total",
			Help: "Snapshot export outcomes per destination kind",
		},
		[]string{"kind", "status"},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveTask records one task invocation.
func ObserveTask(task string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	TaskRuns.WithLabelValues(task, status).Inc()
	TaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latencies labelled by the matched
// chi route pattern to keep cardinality low.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
