// Package metrics instruments tool-index construction and execution
// with Prometheus counters and histograms.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config enables and namespaces metrics collection. A nil *Metrics
// (Enabled false, or New(nil)) makes every Record* method a
// no-op, so callers never need a presence check.
type Config struct {
	Enabled   bool
	Namespace string
}

// Metrics collects construction and execution counters for the tool
// index under one Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	sourcesResolved      *prometheus.CounterVec
	extractionFailures   *prometheus.CounterVec
	constructionDuration prometheus.Histogram

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec
}

// New creates a Metrics instance from cfg. Returns nil if cfg is nil
// or disabled; every method on a nil *Metrics is a safe no-op.
func New(cfg *Config) *Metrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.sourcesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "construction",
			Name:      "sources_resolved_total",
			Help:      "Total number of tool sources resolved, by kind",
		},
		[]string{"kind"},
	)

	m.extractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "construction",
			Name:      "extraction_failures_total",
			Help:      "Total number of tools skipped due to signature extraction failure",
		},
		[]string{"source"},
	)

	m.constructionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "construction",
			Name:      "duration_seconds",
			Help:      "Time spent building the full tool index",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
		},
	)

	m.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "execution",
			Name:      "calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool_name"},
	)

	m.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "execution",
			Name:      "call_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"tool_name"},
	)

	m.toolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "execution",
			Name:      "errors_total",
			Help:      "Total number of tool invocation errors",
		},
		[]string{"tool_name"},
	)

	m.registry.MustRegister(
		m.sourcesResolved, m.extractionFailures, m.constructionDuration,
		m.toolCalls, m.toolCallDuration, m.toolErrors,
	)

	return m
}

// RecordSourceResolved records one successfully resolved source.
func (m *Metrics) RecordSourceResolved(kind string) {
	if m == nil {
		return
	}
	m.sourcesResolved.WithLabelValues(kind).Inc()
}

// RecordExtractionFailure records one tool skipped during construction.
func (m *Metrics) RecordExtractionFailure(source string) {
	if m == nil {
		return
	}
	m.extractionFailures.WithLabelValues(source).Inc()
}

// RecordConstruction records the wall-clock time spent building the
// full index.
func (m *Metrics) RecordConstruction(d time.Duration) {
	if m == nil {
		return
	}
	m.constructionDuration.Observe(d.Seconds())
}

// RecordToolCall records one tool invocation's outcome and duration.
func (m *Metrics) RecordToolCall(toolName string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	m.toolCallDuration.WithLabelValues(toolName).Observe(d.Seconds())
	if err != nil {
		m.toolErrors.WithLabelValues(toolName).Inc()
	}
}

// Handler returns an HTTP handler serving the Prometheus exposition
// format. On a nil *Metrics it reports 503, matching the disabled case.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
