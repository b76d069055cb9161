package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for mutation capture.
type Metrics struct {
	Captured   *prometheus.CounterVec
	Skipped    *prometheus.CounterVec
	Failures   *prometheus.CounterVec
	UnitOfWork prometheus.Histogram
}

// NewMetrics registers capture metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Captured: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_audit_mutations_captured_total",
			Help: "Mutations written to the ledger, by table and operation",
		}, []string{"table", "operation"}),
		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_audit_mutations_skipped_total",
			Help: "Updates not recorded because nothing changed",
		}, []string{"table"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_audit_capture_failures_total",
			Help: "Capture failures that aborted the business transaction",
		}, []string{"table"}),
		UnitOfWork: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "alumni_audit_unit_of_work_seconds",
			Help:    "Duration of audited units of work including commit",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incCaptured(table, op string) {
	if m != nil {
		m.Captured.WithLabelValues(table, op).Inc()
	}
}

func (m *Metrics) incSkipped(table string) {
	if m != nil {
		m.Skipped.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) incFailure(table string) {
	if m != nil {
		m.Failures.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) observeUnitOfWork(seconds float64) {
	if m != nil {
		m.UnitOfWork.Observe(seconds)
	}
}
