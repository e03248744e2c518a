// Package observability provides metrics and tracing for the daemon.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Namespace is the Prometheus namespace (default: mcpd)
	Namespace string

	// ConstLabels are added to all metrics
	ConstLabels prometheus.Labels

	// HistogramBuckets are the latency buckets in milliseconds
	HistogramBuckets []float64
}

// Metrics records what the protocol front end does: session churn, frame
// decoding, request dispatch, and tool execution. A nil *Metrics is valid
// and records nothing, so wiring it is optional.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	sessionsTotal    prometheus.Counter
	framesDecoded    *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	toolCallDuration *prometheus.HistogramVec
	notifyTotal      *prometheus.CounterVec
}

// NewMetrics creates a metrics provider backed by its own Prometheus registry
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "mcpd"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "active_sessions",
			Help:        "Number of currently connected sessions",
			ConstLabels: config.ConstLabels,
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_total",
			Help:        "Total number of accepted sessions",
			ConstLabels: config.ConstLabels,
		}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_decoded_total",
			Help:        "Complete JSON frames extracted from connections",
			ConstLabels: config.ConstLabels,
		}, []string{"mode"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "frames_dropped_total",
			Help:        "Input discarded by the framing layer",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "request_duration_milliseconds",
			Help:        "Dispatch latency per method",
			Buckets:     config.HistogramBuckets,
			ConstLabels: config.ConstLabels,
		}, []string{"method", "status"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "tool_call_duration_milliseconds",
			Help:        "Tool handler execution latency",
			Buckets:     config.HistogramBuckets,
			ConstLabels: config.ConstLabels,
		}, []string{"tool", "status"}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "notifications_sent_total",
			Help:        "Server-initiated notifications written to sessions",
			ConstLabels: config.ConstLabels,
		}, []string{"method"}),
	}

	registry.MustRegister(
		m.activeSessions,
		m.sessionsTotal,
		m.framesDecoded,
		m.framesDropped,
		m.requestDuration,
		m.toolCallDuration,
		m.notifyTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionOpened records an accepted session
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed records a disconnected session
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// FrameDecoded records one extracted frame for a framing mode
func (m *Metrics) FrameDecoded(mode string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(mode).Inc()
}

// FrameDropped records discarded input by reason
func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// RecordRequest records dispatch latency for a method
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, status).Observe(float64(duration.Milliseconds()))
}

// RecordToolCall records tool handler execution latency
func (m *Metrics) RecordToolCall(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCallDuration.WithLabelValues(tool, status).Observe(float64(duration.Milliseconds()))
}

// NotificationSent records one broadcast write
func (m *Metrics) NotificationSent(method string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(method).Inc()
}
