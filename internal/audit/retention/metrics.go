package retention

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the retention job.
type Metrics struct {
	Runs            *prometheus.CounterVec
	ArchivedDays    prometheus.Counter
	ArchivedRecords prometheus.Counter
	DeletedRecords  prometheus.Counter
	BlockedDays     prometheus.Counter
	LastSuccess     prometheus.Gauge
}

// NewMetrics registers retention metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_audit_retention_runs_total",
			Help: "Retention runs by outcome",
		}, []string{"outcome"}),
		ArchivedDays: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_retention_archived_days_total",
			Help: "Ledger days copied to cold storage",
		}),
		ArchivedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_retention_archived_records_total",
			Help: "Ledger records copied to cold storage",
		}),
		DeletedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_retention_deleted_records_total",
			Help: "Ledger records hard-deleted after archival",
		}),
		BlockedDays: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_retention_blocked_days_total",
			Help: "Expired days kept because they are not archived",
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "alumni_audit_retention_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without errors",
		}),
	}
}

func (m *Metrics) observeRun(outcome string) {
	if m != nil {
		m.Runs.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) observeArchived(records int) {
	if m != nil {
		m.ArchivedDays.Inc()
		m.ArchivedRecords.Add(float64(records))
	}
}

func (m *Metrics) observeDeleted(n int64) {
	if m != nil {
		m.DeletedRecords.Add(float64(n))
	}
}

func (m *Metrics) observeBlocked() {
	if m != nil {
		m.BlockedDays.Inc()
	}
}

func (m *Metrics) observeSuccess(unix float64) {
	if m != nil {
		m.LastSuccess.Set(unix)
	}
}
