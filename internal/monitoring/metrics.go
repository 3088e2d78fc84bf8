// Package monitoring collects Prometheus metrics for the sidecar's HTTP
// surface and its archive/upstream data paths.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Proxy data-path metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	ArchiveHits      prometheus.Counter
	ArchiveMisses    prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector registered with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector registered with reg. Tests
// pass a fresh registry to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sidecar_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sidecar_upstream_requests_total",
				Help: "Total number of upstream repository requests",
			},
			[]string{"status"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sidecar_upstream_duration_seconds",
				Help:    "Upstream request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		ArchiveHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sidecar_archive_hits_total",
				Help: "Artifact downloads served from the local archive",
			},
		),
		ArchiveMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sidecar_archive_misses_total",
				Help: "Artifact downloads not present in the local archive",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sidecar_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records metrics for one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordUpstream records metrics for one upstream fetch.
func (m *Metrics) RecordUpstream(status string, duration time.Duration) {
	m.UpstreamRequests.WithLabelValues(status).Inc()
	m.UpstreamDuration.WithLabelValues(status).Observe(duration.Seconds())
}
