package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "billing_scheduler_pass_duration_seconds",
		Help:    "Duration of one full scheduler pass",
		Buckets: prometheus.DefBuckets,
	})

	cyclesPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_cycles_purged_total",
		Help: "Terminal billing cycles removed by cleanup",
	})

	cyclesHealedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_cycles_healed_total",
		Help: "Missing billing cycles recreated by the self-healing pass",
	})

	staleClaimsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_stale_claims_released_total",
		Help: "In-progress cycles returned to their source status after a stale claim",
	})
)
