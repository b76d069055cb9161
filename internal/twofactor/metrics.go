package twofactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for two-factor sessions.
type Metrics struct {
	Opened   prometheus.Counter
	Consumed prometheus.Counter
	Rejected *prometheus.CounterVec
}

// NewMetrics registers session metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Opened: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_2fa_sessions_opened_total",
			Help: "Two-factor sessions issued",
		}),
		Consumed: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_2fa_sessions_consumed_total",
			Help: "Two-factor sessions successfully consumed",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_audit_2fa_sessions_rejected_total",
			Help: "Consume attempts rejected, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) incOpened() {
	if m != nil {
		m.Opened.Inc()
	}
}

func (m *Metrics) incConsumed() {
	if m != nil {
		m.Consumed.Inc()
	}
}

func (m *Metrics) incRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}
