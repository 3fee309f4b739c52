// Package admetrics exposes prometheus collectors for the ad engine.
package admetrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics groups every ad engine collector.
type Metrics struct {
	events       *prometheus.CounterVec
	chargedTotal *prometheus.CounterVec
	fraudScores  prometheus.Histogram
	auctions     *prometheus.CounterVec
	sponsored    prometheus.Counter
	transitions  *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the collectors registered on prometheus.DefaultRegisterer.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers the collectors on registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelmart_ad_events_total",
			Help: "Ad views and clicks by outcome.",
		}, []string{"kind", "outcome"}),
		chargedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelmart_ad_charged_amount_total",
			Help: "Sum of wallet debits for ad events.",
		}, []string{"kind"}),
		fraudScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelmart_ad_fraud_score",
			Help:    "Fraud score of screened ad events.",
			Buckets: []float64{0, 10, 40, 50, 60, 90, 100},
		}),
		auctions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelmart_ad_auctions_total",
			Help: "Banner slot auctions by tier and result.",
		}, []string{"tier", "result"}),
		sponsored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelmart_ad_sponsored_inserted_total",
			Help: "Sponsored entries spliced into result lists.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelmart_ad_transitions_total",
			Help: "Ad lifecycle transitions by event.",
		}, []string{"event"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelmart_ad_sweep_runs_total",
			Help: "Background job runs by job and result.",
		}, []string{"job", "result"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.events, m.chargedTotal, m.fraudScores, m.auctions, m.sponsored, m.transitions, m.sweeps)
	}
	return m
}

// ObserveEvent records one billed or blocked event.
func (m *Metrics) ObserveEvent(kind, outcome string, charged decimal.Decimal, fraudScore int, screened bool) {
	m.events.WithLabelValues(kind, outcome).Inc()
	if charged.IsPositive() {
		m.chargedTotal.WithLabelValues(kind).Add(charged.InexactFloat64())
	}
	if screened {
		m.fraudScores.Observe(float64(fraudScore))
	}
}

// ObserveAuction records a slot auction; filled is false for empty slots.
func (m *Metrics) ObserveAuction(tier string, filled bool) {
	result := "filled"
	if !filled {
		result = "empty"
	}
	m.auctions.WithLabelValues(tier, result).Inc()
}

// ObserveSponsored adds n inserted sponsored entries.
func (m *Metrics) ObserveSponsored(n int) {
	if n > 0 {
		m.sponsored.Add(float64(n))
	}
}

// ObserveTransition records a lifecycle transition.
func (m *Metrics) ObserveTransition(event string) {
	m.transitions.WithLabelValues(event).Inc()
}

// ObserveJob records a background job run.
func (m *Metrics) ObserveJob(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sweeps.WithLabelValues(job, result).Inc()
}
