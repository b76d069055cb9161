package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the change feed.
type Metrics struct {
	Published             prometheus.Counter
	DeliveryFailures      prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers change feed metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_feed_published_total",
			Help: "Ledger records acknowledged by the broker",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_feed_delivery_failures_total",
			Help: "Ledger records the broker rejected or never acknowledged",
		}),
		CircuitBreakerDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "alumni_audit_feed_circuit_breaker_dropped_total",
			Help: "Ledger records not produced because the circuit was open",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "alumni_audit_feed_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) incFailure() {
	if m != nil {
		m.DeliveryFailures.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.CircuitBreakerDropped.Inc()
	}
}

func (m *Metrics) setOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
