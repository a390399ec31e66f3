// Package metrics holds the Prometheus collectors for the membership engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK              = "ok"
	OutcomeValidation      = "validation"
	OutcomeNotFound        = "not_found"
	OutcomeConflict        = "conflict"
	OutcomeUnauthorized    = "unauthorized"
	OutcomeInternal        = "internal"
	OutcomeResourceLimited = "rate_limited"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations          *prometheus.CounterVec
	derangementAttempts prometheus.Histogram
	casRetries          *prometheus.CounterVec
	rateLimited         prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kriskindle_operations_total",
			Help: "Membership operations by outcome.",
		}, []string{"operation", "outcome"}),
		derangementAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kriskindle_derangement_attempts",
			Help:    "Shuffles needed to find a derangement.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		casRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kriskindle_cas_retries_total",
			Help: "Read-modify-write retries after a version conflict.",
		}, []string{"operation"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "kriskindle_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveOperation counts one finished operation.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveDerangement records how many shuffles a group creation needed.
func (m *Metrics) ObserveDerangement(attempts int) {
	if m == nil {
		return
	}
	m.derangementAttempts.Observe(float64(attempts))
}

// IncRetry counts one CAS retry.
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.casRetries.WithLabelValues(operation).Inc()
}

// IncRateLimited counts one rejected request.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
