// Package metrics provides Prometheus metrics for the approval core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the console core.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	DecisionsTotal     *prometheus.CounterVec
	ExecutionsTotal    *prometheus.CounterVec
	ExpiredTotal       prometheus.Counter
	AuthzDeniedTotal   *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	DecisionLatency    prometheus.Histogram

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_action_requests_total",
				Help: "Action requests created, by risk level and initial status.",
			},
			[]string{"risk", "status"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_decisions_total",
				Help: "Approval decisions, by result.",
			},
			[]string{"result"},
		),
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_executions_total",
				Help: "Action executions, by terminal result.",
			},
			[]string{"result"},
		),
		ExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "console_requests_expired_total",
				Help: "Requests that expired before a decision.",
			},
		),
		AuthzDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_authz_denied_total",
				Help: "Authorization denials, by operation.",
			},
			[]string{"operation"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "console_audit_write_failures_total",
				Help: "Audit writes that failed and aborted their transition.",
			},
		),
		DecisionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "console_decision_latency_seconds",
				Help:    "Time from request creation to decision.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.DecisionsTotal)
	reg.MustRegister(m.ExecutionsTotal)
	reg.MustRegister(m.ExpiredTotal)
	reg.MustRegister(m.AuthzDeniedTotal)
	reg.MustRegister(m.AuditWriteFailures)
	reg.MustRegister(m.DecisionLatency)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter.
func (m *Metrics) RecordRequest(risk, status string) {
	m.RequestsTotal.WithLabelValues(risk, status).Inc()
}

// RecordDecision increments the decision counter.
func (m *Metrics) RecordDecision(result string) {
	m.DecisionsTotal.WithLabelValues(result).Inc()
}

// RecordExecution increments the execution counter.
func (m *Metrics) RecordExecution(result string) {
	m.ExecutionsTotal.WithLabelValues(result).Inc()
}

// RecordExpired increments the expiry counter.
func (m *Metrics) RecordExpired() {
	m.ExpiredTotal.Inc()
}

// RecordAuthzDenied increments the denial counter for an operation.
func (m *Metrics) RecordAuthzDenied(operation string) {
	m.AuthzDeniedTotal.WithLabelValues(operation).Inc()
}

// RecordAuditFailure increments the audit failure counter.
func (m *Metrics) RecordAuditFailure() {
	m.AuditWriteFailures.Inc()
}

// ObserveDecisionLatency records the creation-to-decision delay.
func (m *Metrics) ObserveDecisionLatency(seconds float64) {
	m.DecisionLatency.Observe(seconds)
}
