package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process-wide Prometheus collectors shared by the ledger,
// admission pipeline and notifier.
type Metrics struct {
	AdmissionOutcomes  *prometheus.CounterVec
	NotifierDeliveries *prometheus.CounterVec
	LedgerLatency      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AdmissionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apply_admission_outcomes_total",
			Help: "Submissions processed by the admission pipeline, by outcome code",
		}, []string{"outcome"}),
		NotifierDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "apply_notifier_deliveries_total",
			Help: "Webhook deliveries of accepted records, by result",
		}, []string{"result"}),
		LedgerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apply_ledger_operation_duration_seconds",
			Help:    "Latency of ledger operations",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// IncAdmission counts one pipeline outcome ("accepted" or a rejection code).
func (m *Metrics) IncAdmission(outcome string) {
	m.AdmissionOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDelivery(result string) {
	m.NotifierDeliveries.WithLabelValues(result).Inc()
}
