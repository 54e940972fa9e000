package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for rollbook_sync_actions_total.
const (
	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeBlocked   = "blocked"
	outcomeSkipped   = "skipped"
)

type metrics struct {
	actions *prometheus.CounterVec
	drain   prometheus.Histogram
}

// newMetrics creates the reconciler's collectors on reg. A nil reg leaves
// them unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rollbook_sync_actions_total",
			Help: "Pending actions handled by drains, by action type and outcome.",
		}, []string{"type", "outcome"}),
		drain: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rollbook_sync_drain_seconds",
			Help:    "Duration of queue drains.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
