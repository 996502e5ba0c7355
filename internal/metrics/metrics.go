package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A single instance is
// created at startup and handed to whatever wants to record.
type Metrics struct {
	Registry *prometheus.Registry

	TradesIngested  prometheus.Counter
	TradesDuplicate prometheus.Counter
	TradesDropped   prometheus.Counter

	WindowSize     prometheus.Gauge
	WindowEvicted  prometheus.Counter
	UniqueWallets  prometheus.Gauge
	LeadersFound   *prometheus.GaugeVec
	CandidatesSent prometheus.Counter

	CycleDuration prometheus.Histogram
	CycleErrors   prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		TradesIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "polyleader_trades_ingested_total",
			Help: "Trades admitted into the rolling window.",
		}),
		TradesDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "polyleader_trades_duplicate_total",
			Help: "Trades rejected by the deduplicator.",
		}),
		TradesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "polyleader_trades_dropped_total",
			Help: "Malformed trades dropped during normalization.",
		}),

		WindowSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "polyleader_window_trades",
			Help: "Trades currently inside the rolling window.",
		}),
		WindowEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "polyleader_window_evicted_total",
			Help: "Trades aged out of the rolling window.",
		}),
		UniqueWallets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "polyleader_unique_wallets",
			Help: "Distinct wallets seen in the last aggregation pass.",
		}),
		LeadersFound: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "polyleader_leaders",
			Help: "Leaders selected in the last report, by tier.",
		}, []string{"tier"}),
		CandidatesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "polyleader_copy_candidates_total",
			Help: "Copy candidates emitted downstream.",
		}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "polyleader_cycle_duration_seconds",
			Help:    "Wall time of one fetch+classify cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		CycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "polyleader_cycle_errors_total",
			Help: "Cycles that failed before producing a report.",
		}),
	}
}
