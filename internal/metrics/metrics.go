// Package metrics provides Prometheus metrics for the settlement agent.
// Counters track how withdrawal pipelines terminate (ok, error, partial)
// and the histogram tracks full pipeline duration including the
// settlement wait.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the settlement agent.
type Metrics struct {
	SweepsOK         prometheus.Counter   // Pipelines ending in status=ok
	SweepsFailed     prometheus.Counter   // Pipelines ending in status=error
	SweepsPartial    prometheus.Counter   // Pipelines ending in status=partial
	WithdrawnSats    prometheus.Counter   // Total sats released from the exchange
	TransferredSats  prometheus.Counter   // Total sats swept to the wallet
	ReadRetries      prometheus.Counter   // Retries of read-only balance queries
	PipelineDuration prometheus.Histogram // Full pipeline duration in seconds
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// testing without touching the global Prometheus registry).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SweepsOK: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweeps_ok_total",
			Help: "Total number of withdrawal pipelines that completed successfully",
		}),
		SweepsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweeps_failed_total",
			Help: "Total number of withdrawal pipelines that ended in a hard error",
		}),
		SweepsPartial: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweeps_partial_total",
			Help: "Total number of withdrawal pipelines that ended partially settled",
		}),
		WithdrawnSats: factory.NewCounter(prometheus.CounterOpts{
			Name: "withdrawn_sats_total",
			Help: "Total satoshis released from the exchange ledger",
		}),
		TransferredSats: factory.NewCounter(prometheus.CounterOpts{
			Name: "transferred_sats_total",
			Help: "Total satoshis swept to the controlling wallet",
		}),
		ReadRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "read_retries_total",
			Help: "Total number of retried read-only balance queries",
		}),
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "Withdrawal pipeline duration in seconds",
			Buckets: []float64{1, 2.5, 5, 7.5, 10, 15, 30, 60},
		}),
	}
}
