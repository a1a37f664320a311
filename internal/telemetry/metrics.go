// Package telemetry wires Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeInvalid   = "invalid"
	OutcomeExpired   = "expired"
	OutcomeStale     = "stale"
	OutcomeRefreshed = "refreshed"
)

// Metrics holds the service's collectors. A nil *Metrics is valid and
// records nothing, so tests and tools can skip metrics entirely.
type Metrics struct {
	registry *prometheus.Registry

	authEvents      *prometheus.CounterVec
	externalRefresh *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jiaa",
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication operations by kind and outcome.",
		}, []string{"event", "outcome"}),
		externalRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jiaa",
			Subsystem: "external",
			Name:      "token_reads_total",
			Help:      "External access token reads by outcome (fresh, refreshed, stale, failure).",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jiaa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jiaa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authEvents,
		m.externalRefresh,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AuthEvent counts one signup, signin, refresh, logout or external login.
func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

// ExternalTokenRead counts one GetAccessToken outcome.
func (m *Metrics) ExternalTokenRead(outcome string) {
	if m == nil {
		return
	}
	m.externalRefresh.WithLabelValues(outcome).Inc()
}

// HTTPRequest records one completed request.
func (m *Metrics) HTTPRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(seconds)
}
