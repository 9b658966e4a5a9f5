// Package metrics holds the Prometheus collectors shared by every module.
// Collectors are registered on the Registerer passed to New so tests can use
// a private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RecordsCreated     *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	AuthorizationDeny  *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	LoginAttempts      *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
	RevocationChecks   *prometheus.HistogramVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landregistry_records_created_total",
			Help: "Records created, by entity",
		}, []string{"entity"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landregistry_state_transitions_total",
			Help: "Applied state transitions, by entity and target state",
		}, []string{"entity", "to"}),
		AuthorizationDeny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landregistry_authorization_denied_total",
			Help: "Operations refused by the access policy",
		}, []string{"operation"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landregistry_transition_duration_seconds",
			Help:    "Duration of state transition operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "landregistry_login_attempts_total",
			Help: "Login attempts, by outcome",
		}, []string{"outcome"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landregistry_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status class",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status"}),
		RevocationChecks: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landregistry_token_revocation_check_duration_seconds",
			Help:    "Latency of token revocation list lookups, by backend",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}, []string{"backend"}),
	}
}

// IncrementCreated records a created record. Safe on a nil receiver.
func (m *Metrics) IncrementCreated(entity string) {
	if m == nil {
		return
	}
	m.RecordsCreated.WithLabelValues(entity).Inc()
}

// IncrementTransition records an applied transition.
func (m *Metrics) IncrementTransition(entity, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, to).Inc()
}

// IncrementDenied records a policy refusal.
func (m *Metrics) IncrementDenied(operation string) {
	if m == nil {
		return
	}
	m.AuthorizationDeny.WithLabelValues(operation).Inc()
}

// ObserveTransition records the duration of a transition operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.TransitionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncrementLogin records a login outcome ("success" or "failure").
func (m *Metrics) IncrementLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records a finished request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// ObserveRevocationCheck records a revocation lookup against backend.
func (m *Metrics) ObserveRevocationCheck(backend string, start time.Time) {
	if m == nil {
		return
	}
	m.RevocationChecks.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}
