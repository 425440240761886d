// Package metrics exposes Prometheus instrumentation for the ledger core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	mutationsApplied *prometheus.CounterVec
	mutationsFailed  *prometheus.CounterVec
	conflictRetries  prometheus.Counter
	intents          *prometheus.CounterVec
	dispatches       *prometheus.CounterVec
	mutationDuration prometheus.Histogram
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		mutationsApplied: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_mutations_applied_total",
			Help: "Ledger mutations committed, by category",
		}, []string{"category"}),
		mutationsFailed: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_mutations_failed_total",
			Help: "Ledger mutations rejected or failed, by reason",
		}, []string{"reason"}),
		conflictRetries: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "wallet_mutation_conflict_retries_total",
			Help: "Optimistic-concurrency collisions that triggered a retry",
		}),
		intents: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_intents_total",
			Help: "Intent lifecycle outcomes: recorded, confirmed, rejected, replayed",
		}, []string{"outcome"}),
		dispatches: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_notification_dispatches_total",
			Help: "External notification dispatch results",
		}, []string{"status"}),
		mutationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_mutation_duration_seconds",
			Help:    "End-to-end time to commit a ledger mutation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (c *Collector) MutationApplied(category string, d time.Duration) {
	c.mutationsApplied.WithLabelValues(category).Inc()
	c.mutationDuration.Observe(d.Seconds())
}

func (c *Collector) MutationFailed(reason string) {
	c.mutationsFailed.WithLabelValues(reason).Inc()
}

func (c *Collector) ConflictRetry() {
	c.conflictRetries.Inc()
}

func (c *Collector) Intent(outcome string) {
	c.intents.WithLabelValues(outcome).Inc()
}

func (c *Collector) Dispatch(status string) {
	c.dispatches.WithLabelValues(status).Inc()
}

// Handler serves the collector's registry, for mounting at /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
