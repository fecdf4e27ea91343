// Package metrics exposes capture statistics in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/cjeanneret/LotCam/internal/logic/capture"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lotcam"

// Metrics is a capture.Observer feeding a private Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	captures    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    prometheus.Histogram
	lastCapture *prometheus.GaugeVec
}

var _ capture.Observer = (*Metrics)(nil)

// New creates and registers the capture metrics, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Snapshots written, by kind (initial or update)",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Captures that failed, by kind",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Time spent in a single capture, from trigger to file in place",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		lastCapture: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_capture_timestamp_seconds",
			Help:      "Unix timestamp of the last successful capture, by kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.captures,
		m.failures,
		m.duration,
		m.lastCapture,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// CaptureDone records one capture event.
func (m *Metrics) CaptureDone(e capture.Event) {
	kind := string(e.Kind)
	if e.Err != nil {
		m.failures.WithLabelValues(kind).Inc()
		return
	}
	m.captures.WithLabelValues(kind).Inc()
	m.duration.Observe(e.Duration.Seconds())
	m.lastCapture.WithLabelValues(kind).Set(float64(e.At.UnixNano()) / 1e9)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
