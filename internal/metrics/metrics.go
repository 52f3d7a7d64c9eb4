// Package metrics exposes Prometheus collectors for the walkthrough API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walkthrough"

// Submission outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeValidation     = "validation_error"
	OutcomePartialFailure = "partial_failure"
	OutcomeError          = "error"
)

// Metrics holds the collectors of one service instance on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	submissions   *prometheus.CounterVec
	submitLatency prometheus.Histogram
	incidents     *prometheus.CounterVec
	incidentFails prometheus.Counter
	notifications *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "total",
			Help:      "Walkthrough submissions by outcome.",
		}, []string{"outcome"}),
		submitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "submission",
			Name:      "duration_seconds",
			Help:      "Duration of walkthrough submissions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Incidents created by part type and severity.",
		}, []string{"part_type", "severity"}),
		incidentFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "write_failures_total",
			Help:      "Incident writes that failed during submission.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "published_total",
			Help:      "Incident notifications by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.submissions,
		m.submitLatency,
		m.incidents,
		m.incidentFails,
		m.notifications,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one completed request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSubmission records a submission outcome and its latency.
func (m *Metrics) RecordSubmission(outcome string, duration time.Duration) {
	m.submissions.WithLabelValues(outcome).Inc()
	m.submitLatency.Observe(duration.Seconds())
}

// RecordIncident counts one created incident.
func (m *Metrics) RecordIncident(partType, severity string) {
	m.incidents.WithLabelValues(partType, severity).Inc()
}

// RecordIncidentFailures counts failed incident writes.
func (m *Metrics) RecordIncidentFailures(n int) {
	m.incidentFails.Add(float64(n))
}

// RecordNotification counts a notification publish attempt.
func (m *Metrics) RecordNotification(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notifications.WithLabelValues(result).Inc()
}
