package core

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetricsRecorder exports per-operation counters and latency
// histograms on its own registry, keeping the default registry untouched.
type PrometheusMetricsRecorder struct {
	registry  *prometheus.Registry
	operation *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder constructs a recorder with a private
// registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	registry := prometheus.NewRegistry()
	rec := &PrometheusMetricsRecorder{
		registry: registry,
		operation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "experimentcore",
			Name:      "operations_total",
			Help:      "Service operations by operation name and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "experimentcore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	registry.MustRegister(rec.operation, rec.duration)
	return rec
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operation.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Registry exposes the private registry for custom collectors.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry { return r.registry }

// Handler returns an HTTP handler serving the recorder's metrics.
func (r *PrometheusMetricsRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
