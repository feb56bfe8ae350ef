package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts fetch attempts for one run. Every attempt of a retried
// request is counted on its own; links are added once the run completes.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	LinksFoundTotal prometheus.Counter
}

// NewMetrics returns collectors registered on a private registry, so several
// fetchers in one process never collide.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msufinder_requests_total",
			Help: "Connection attempts made, one per try of a request, by virtual host.",
		},
		[]string{"host"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "msufinder_request_duration_seconds",
			Help:    "Time from dial to full body for a single attempt, failed attempts included.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "msufinder_retries_total",
			Help: "Attempts repeated after a transient network failure.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "msufinder_errors_total",
			Help: "Failed attempts by failure class: timeout, connection, eof, tls or other.",
		},
		[]string{"error_type"},
	)
	links := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "msufinder_links_found_total",
			Help: "Download links reported at the end of a run.",
		},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, links)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
		LinksFoundTotal: links,
	}
}

// IncRequest records an attempt against host.
func (m *Metrics) IncRequest(host string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(host).Inc()
}

// ObserveDuration records how long one attempt took.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries records a pause before another attempt.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError records a failed attempt under its class label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// AddLinks records the links a run reported.
func (m *Metrics) AddLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinksFoundTotal.Add(float64(n))
}
