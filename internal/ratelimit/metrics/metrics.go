package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitChecks *prometheus.CounterVec
}

// New registers the rate limit metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RateLimitChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apply_ratelimit_checks_total",
			Help: "Per-address rate limit checks by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) RecordAllowed() {
	m.RateLimitChecks.WithLabelValues("allowed").Inc()
}

func (m *Metrics) RecordBlocked() {
	m.RateLimitChecks.WithLabelValues("blocked").Inc()
}
