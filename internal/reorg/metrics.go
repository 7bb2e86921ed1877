package reorg

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rollbacksApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_reorg_rollbacks_total",
			Help: "Total number of startup rollbacks of potentially reorganised blocks",
		},
		[]string{"job"},
	)

	rollbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "compliancescanner_reorg_rollback_depth_blocks",
			Help:    "Number of blocks discarded by startup rollbacks",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	rollbackLastApplied = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_reorg_rollback_last_timestamp",
			Help: "Unix timestamp of the last startup rollback",
		},
		[]string{"job"},
	)

	rollbackFromBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_reorg_rollback_from_block",
			Help: "First block discarded by the last startup rollback",
		},
		[]string{"job"},
	)
)

func RollbackLog(job string, depth, fromBlock uint64) {
	rollbacksApplied.WithLabelValues(job).Inc()
	rollbackDepth.Observe(float64(depth))
	rollbackLastApplied.WithLabelValues(job).Set(float64(time.Now().UTC().Unix()))
	rollbackFromBlock.WithLabelValues(job).Set(float64(fromBlock))
}
