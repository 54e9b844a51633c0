package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/swipeless/payment-relay/internal/domain"
)

const namespace = "payment_relay"

// Operation labels for payment failures
const (
	OperationPurchase = "purchase"
	OperationStatus   = "status"
)

// Metrics holds the relay's prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PaymentFailures    *prometheus.CounterVec
	RelayOutcomes      *prometheus.CounterVec
	SessionsRegistered prometheus.Counter
	OpenSessions       prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PaymentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_failures_total",
			Help:      "Purchase and status calls that failed, by operation.",
		}, []string{"operation"}),
		RelayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_outcomes_total",
			Help:      "Completion notifications handled, by outcome.",
		}, []string{"outcome"}),
		SessionsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_registered_total",
			Help:      "Push sessions registered against a transaction reference.",
		}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Push sessions currently connected to this instance.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.PaymentFailures, m.RelayOutcomes, m.SessionsRegistered, m.OpenSessions)
	}
	return m
}

// PaymentFailed counts a failed purchase or status call
func (m *Metrics) PaymentFailed(operation string) {
	if m == nil {
		return
	}
	m.PaymentFailures.WithLabelValues(operation).Inc()
}

// Relayed counts a relay outcome
func (m *Metrics) Relayed(outcome domain.RelayOutcome) {
	if m == nil {
		return
	}
	m.RelayOutcomes.WithLabelValues(string(outcome)).Inc()
}

// SessionRegistered counts a successful registration
func (m *Metrics) SessionRegistered() {
	if m == nil {
		return
	}
	m.SessionsRegistered.Inc()
}

// SessionOpened increments the open session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.OpenSessions.Inc()
}

// SessionClosed decrements the open session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.OpenSessions.Dec()
}
