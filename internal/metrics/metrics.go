// Package metrics exposes payout pipeline counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors, labelled by the subject
// collection a scheduler serves.
type Metrics struct {
	Prepared    *prometheus.CounterVec
	NotEligible *prometheus.CounterVec
	Broadcast   *prometheus.CounterVec
	Confirmed   *prometheus.CounterVec
	Failed      *prometheus.CounterVec
	LastRun     *prometheus.GaugeVec
}

// New creates and registers the collectors. Pass prometheus.DefaultRegisterer
// in production; tests use a private registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Prepared: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_prepared_total",
			Help: "Payouts signed and persisted as Prepared.",
		}, []string{"collection"}),
		NotEligible: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_not_eligible_total",
			Help: "Subjects whose computed reward was zero or negative.",
		}, []string{"collection"}),
		Broadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_broadcast_total",
			Help: "Payouts announced to the network.",
		}, []string{"collection"}),
		Confirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_confirmed_total",
			Help: "Payouts confirmed on chain.",
		}, []string{"collection"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payouts_failed_total",
			Help: "Payouts that failed after broadcast.",
		}, []string{"collection"}),
		LastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payouts_scheduler_last_run_timestamp_seconds",
			Help: "Unix time of each scheduler's last completed run.",
		}, []string{"scheduler"}),
	}
	if reg != nil {
		reg.MustRegister(m.Prepared, m.NotEligible, m.Broadcast, m.Confirmed, m.Failed, m.LastRun)
	}
	return m
}

// NewUnregistered creates collectors without registering them; used by tests
// that only care about side effects.
func NewUnregistered() *Metrics {
	return New(nil)
}
