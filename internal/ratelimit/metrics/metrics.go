package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Denied      *prometheus.CounterVec
	StoreErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Denied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_ratelimit_denied_total",
			Help: "Requests rejected with 429 by endpoint class",
		}, []string{"class"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_ratelimit_store_errors_total",
			Help: "Limit checks that failed open because the bucket store errored",
		}, []string{"class"}),
	}
}

func (m *Metrics) IncrementDenied(class string) {
	if m == nil {
		return
	}
	m.Denied.WithLabelValues(class).Inc()
}

func (m *Metrics) IncrementStoreErrors(class string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(class).Inc()
}
