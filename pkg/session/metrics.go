package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session transitions. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	stale       prometheus.Counter
}

// NewMetrics creates the session metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erp",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"to"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "erp",
			Subsystem: "session",
			Name:      "stale_checks_total",
			Help:      "Authentication checks whose result was discarded because a newer check or transition superseded them.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.stale)
	}
	return m
}

func (m *Metrics) transition(to Status) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) staleCheck() {
	if m == nil {
		return
	}
	m.stale.Inc()
}
