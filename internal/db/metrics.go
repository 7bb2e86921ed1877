package db

import (
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Maintenance metrics are labelled with the base name of the state database file.
var (
	maintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_state_db_maintenance_total",
			Help: "SQLite scan state maintenance runs by database and outcome",
		},
		[]string{"db", "status"},
	)

	maintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compliancescanner_state_db_maintenance_duration_seconds",
			Help:    "Duration of SQLite scan state maintenance",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"db"},
	)

	spaceReclaimed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_state_db_space_reclaimed_bytes",
			Help: "Bytes reclaimed by the last maintenance of a scan state database",
		},
		[]string{"db"},
	)

	dbSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_state_db_size_bytes",
			Help: "Scan state database size in bytes, WAL and shared memory files included",
		},
		[]string{"db"},
	)

	walCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_state_db_wal_checkpoints_total",
			Help: "WAL checkpoints by mode",
		},
		[]string{"mode"},
	)

	vacuumRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "compliancescanner_state_db_vacuums_total",
			Help: "VACUUM runs",
		},
	)
)

func dbLabel(dbPath string) string {
	return filepath.Base(dbPath)
}

func MaintenanceLog(dbPath string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	maintenanceRuns.WithLabelValues(dbLabel(dbPath), status).Inc()
	maintenanceDuration.WithLabelValues(dbLabel(dbPath)).Observe(duration.Seconds())
}

func SpaceReclaimedLog(dbPath string, bytesReclaimed uint64) {
	spaceReclaimed.WithLabelValues(dbLabel(dbPath)).Set(float64(bytesReclaimed))
}

func DBSizeLog(dbPath string, sizeBytes int64) {
	dbSize.WithLabelValues(dbLabel(dbPath)).Set(float64(sizeBytes))
}

func WALCheckpointInc(mode string) {
	walCheckpoints.WithLabelValues(mode).Inc()
}

func VacuumRunsInc() {
	vacuumRuns.Inc()
}
