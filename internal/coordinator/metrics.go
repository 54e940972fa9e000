package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const outcomeRejected = "rejected"

// newWritesCounter creates rollbook_writes_total on reg. A nil reg leaves
// it unregistered.
func newWritesCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	return promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "rollbook_writes_total",
		Help: "Coordinator writes, by operation and outcome.",
	}, []string{"op", "outcome"})
}
