package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the session gate. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Validations          *prometheus.CounterVec
	ValidationDuration   prometheus.Histogram
	StaleValidations     prometheus.Counter
	SignIns              *prometheus.CounterVec
	SignOuts             prometheus.Counter
	InvalidationFailures prometheus.Counter
	GuardDecisions       *prometheus.CounterVec
	Authenticated        prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdesk_session_validations_total",
			Help: "Session validations by outcome and failure reason",
		}, []string{"outcome", "reason"}),
		ValidationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetdesk_session_validation_duration_ms",
			Help:    "Duration of session validation in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		StaleValidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleetdesk_session_validations_stale_total",
			Help: "Validations whose result was discarded because a newer one started",
		}),
		SignIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdesk_sign_ins_total",
			Help: "Sign-in attempts by outcome",
		}, []string{"outcome"}),
		SignOuts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleetdesk_sign_outs_total",
			Help: "Local sign-outs, including those forced by failed validation",
		}),
		InvalidationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleetdesk_session_invalidation_failures_total",
			Help: "Best-effort remote session invalidations that failed",
		}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetdesk_guard_decisions_total",
			Help: "Route guard decisions by guard kind and phase",
		}, []string{"guard", "phase"}),
		Authenticated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleetdesk_authenticated",
			Help: "1 while the process holds an authenticated session",
		}),
	}
}

func (m *Metrics) IncrementValidation(outcome, reason string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) ObserveValidationDuration(durationMs float64) {
	if m == nil {
		return
	}
	m.ValidationDuration.Observe(durationMs)
}

func (m *Metrics) IncrementStaleValidations() {
	if m == nil {
		return
	}
	m.StaleValidations.Inc()
}

func (m *Metrics) IncrementSignIn(outcome string) {
	if m == nil {
		return
	}
	m.SignIns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementSignOuts() {
	if m == nil {
		return
	}
	m.SignOuts.Inc()
}

func (m *Metrics) IncrementInvalidationFailures() {
	if m == nil {
		return
	}
	m.InvalidationFailures.Inc()
}

func (m *Metrics) IncrementGuardDecision(guard, phase string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(guard, phase).Inc()
}

func (m *Metrics) SetAuthenticated(authenticated bool) {
	if m == nil {
		return
	}
	if authenticated {
		m.Authenticated.Set(1)
		return
	}
	m.Authenticated.Set(0)
}
