// Package telemetry provides logging and Prometheus metrics for the admin console.
//
// # Prometheus Metrics Endpoint
//
// Metrics are registered against the default Prometheus registry. Short-lived
// commands (list, undo, export) never expose them; the long-running watch
// command starts a side-channel HTTP server when telemetry.metrics.enabled is set:
//
//	GET http://<host>:<ADMC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9091.
//
// # Metric Groups
//
//   - Admin API request counters and latency histograms (labelled by endpoint template)
//   - Undo outcomes
//   - Auto-refresh tick outcomes and discarded stale responses
//   - CSV exports by mode and outcome
//
// # Label Cardinality
//
// API metrics use the endpoint template (/api/audit/:id/undo) rather than the
// request path so record identifiers never become label values.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Admin API metrics, labelled by method, endpoint template and status.
//
// The status label is the HTTP status code, or "error" when the request never
// produced a response (connection refused, timeout, cancelled context).
//
// Example PromQL queries:
//   - Failure rate:       sum(rate(admin_api_requests_total{status!~"2.."}[5m])) / sum(rate(admin_api_requests_total[5m]))
//   - p95 latency:        histogram_quantile(0.95, sum by (endpoint, le) (rate(admin_api_request_duration_seconds_bucket[5m])))
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_api_requests_total",
			Help: "Total number of admin API requests issued, by method, endpoint template, and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admin_api_request_duration_seconds",
			Help:    "Histogram of admin API request latencies, by method and endpoint template.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)
)

// UndoRequestsTotal counts undo attempts by outcome:
// "success", "failed", "in_progress" (rejected locally) and "auth_required".
var UndoRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "audit_undo_requests_total",
		Help: "Total number of undo requests, by outcome.",
	},
	[]string{"outcome"},
)

// History view metrics.
//
// RefreshTicksTotal outcomes: "applied", "skipped" (mutation or load in flight),
// "failed" and "stale".
var (
	RefreshTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_refresh_ticks_total",
			Help: "Total number of auto-refresh ticks, by outcome.",
		},
		[]string{"outcome"},
	)

	StaleResponsesDiscardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "history_stale_responses_discarded_total",
			Help: "Total number of page responses discarded because a newer request superseded them.",
		},
	)
)

// ExportsTotal counts CSV exports by mode ("page" or "filtered") and outcome
// ("success" or "failed").
var ExportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "history_exports_total",
		Help: "Total number of CSV exports, by mode and outcome.",
	},
	[]string{"mode", "outcome"},
)

// Development API server metrics. The path label is the gin route template,
// or "<no-route>" for unmatched requests.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dev_api_http_requests_total",
			Help: "Total number of requests served by the development API, by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dev_api_http_request_duration_seconds",
			Help:    "Histogram of development API request latencies, by method and path.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ObserveAPIRequest records one admin API call.
func ObserveAPIRequest(method, endpoint string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = fmt.Sprintf("%d", status)
	}
	APIRequestsTotal.WithLabelValues(method, endpoint, label).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// NewMetricsServer returns an HTTP server exposing /metrics on port.
func NewMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ServeMetrics runs the metrics side server until ctx is cancelled.
func ServeMetrics(ctx context.Context, port int) error {
	srv := NewMetricsServer(port)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
