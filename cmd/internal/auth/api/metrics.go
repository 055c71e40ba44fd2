package authapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels used on auth counters.
const (
	outcomeOK             = "ok"
	outcomeInvalid        = "invalid"
	outcomeDuplicateEmail = "duplicate_email"
	outcomeReuseDetected  = "reuse_detected"
	outcomeError          = "error"
)

// Metrics counts auth operations by outcome.
type Metrics struct {
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	logouts       prometheus.Counter
	reuseDetected prometheus.Counter
}

// NewMetrics registers auth counters on reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "auth",
			Name:      "refreshes_total",
			Help:      "Refresh-token rotations by outcome.",
		}, []string{"outcome"}),
		logouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "auth",
			Name:      "logouts_total",
			Help:      "Logout requests.",
		}),
		reuseDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "cortex",
			Subsystem: "auth",
			Name:      "refresh_reuse_detected_total",
			Help:      "Replayed refresh tokens that triggered a revoke-all cascade.",
		}),
	}
}

func (m *Metrics) registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) refresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	if outcome == outcomeReuseDetected {
		m.reuseDetected.Inc()
	}
}

func (m *Metrics) logout() {
	if m == nil {
		return
	}
	m.logouts.Inc()
}
