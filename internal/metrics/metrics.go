// Package metrics exposes Prometheus counters for the quote pipeline.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quotewatch"

// Metrics is the set of pipeline collectors
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal              *prometheus.CounterVec
	CredentialRefreshesTotal *prometheus.CounterVec
	RetriesTotal             *prometheus.CounterVec
	FetchFailuresTotal       *prometheus.CounterVec
	ParseFailuresTotal       prometheus.Counter
	ObservationsPublished    prometheus.Counter
	ObservationsDropped      prometheus.Counter
	LastPrice                prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Polling cycles by outcome",
		}, []string{"outcome"}),
		CredentialRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_refreshes_total",
			Help:      "Cookie and crumb refresh sequences by result",
		}, []string{"result"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Backoff waits before a retry, by operation",
		}, []string{"operation"}),
		FetchFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetch attempts by operation and error type",
		}, []string{"operation", "type"}),
		ParseFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      "Quote documents that could not be parsed",
		}),
		ObservationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_published_total",
			Help:      "Observations handed to the feed",
		}),
		ObservationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_dropped_total",
			Help:      "Observations evicted from a full feed",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_price",
			Help:      "Price of the most recent observation",
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.CredentialRefreshesTotal,
		m.RetriesTotal,
		m.FetchFailuresTotal,
		m.ParseFailuresTotal,
		m.ObservationsPublished,
		m.ObservationsDropped,
		m.LastPrice,
	)
	return m
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler serving the collectors
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Cycle counts a completed cycle with the given outcome label
func (m *Metrics) Cycle(outcome string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
}

// Refresh counts a credential refresh sequence
func (m *Metrics) Refresh(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.CredentialRefreshesTotal.WithLabelValues(result).Inc()
}

// Retry counts a backoff wait for operation
func (m *Metrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(operation).Inc()
}

// FetchFailure counts a failed attempt
func (m *Metrics) FetchFailure(operation, errType string) {
	if m == nil {
		return
	}
	m.FetchFailuresTotal.WithLabelValues(operation, errType).Inc()
}

// ParseFailure counts an unparseable document
func (m *Metrics) ParseFailure() {
	if m == nil {
		return
	}
	m.ParseFailuresTotal.Inc()
}

// Published counts a published observation and records its price
func (m *Metrics) Published(price float64) {
	if m == nil {
		return
	}
	m.ObservationsPublished.Inc()
	m.LastPrice.Set(price)
}

// Dropped counts an evicted observation
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.ObservationsDropped.Inc()
}
