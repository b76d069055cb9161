package restore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for restores.
type Metrics struct {
	Restores *prometheus.CounterVec
	Duration prometheus.Histogram
}

// NewMetrics registers restore metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Restores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_audit_restores_total",
			Help: "Restore attempts by table and outcome",
		}, []string{"table", "outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "alumni_audit_restore_duration_seconds",
			Help:    "Restore latency including the two-factor check",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(table, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(table, outcome).Inc()
	m.Duration.Observe(seconds)
}
