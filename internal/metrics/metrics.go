package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scanning metrics
	LastScannedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_last_scanned_block",
			Help: "The last block number successfully scanned",
		},
		[]string{"job"},
	)

	ChunksScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_chunks_scanned_total",
			Help: "Total number of block chunks scanned",
		},
		[]string{"job"},
	)

	BlocksScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_blocks_scanned_total",
			Help: "Total number of blocks scanned",
		},
		[]string{"job"},
	)

	EventsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_events_collected_total",
			Help: "Total number of events collected by event name",
		},
		[]string{"job", "event"},
	)

	ChunkSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_chunk_size_blocks",
			Help: "Current adaptive chunk size in blocks",
		},
		[]string{"job"},
	)

	ChunkProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compliancescanner_chunk_processing_duration_seconds",
			Help:    "Time taken to fetch, decode and store one chunk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	GetLogsRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_get_logs_retries_total",
			Help: "Total number of eth_getLogs retries with a narrowed range",
		},
		[]string{"job"},
	)

	// Scan state metrics
	StateSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_state_saves_total",
			Help: "Total number of scan state saves by format and outcome",
		},
		[]string{"format", "status"},
	)

	StateSaveTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compliancescanner_state_save_duration_seconds",
			Help:    "Duration of scan state saves",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	StateRestores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_state_restores_total",
			Help: "Total number of scan state restores by format and outcome",
		},
		[]string{"format", "outcome"},
	)

	// ABI metrics
	ABICacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_abi_cache_lookups_total",
			Help: "Total number of ABI cache lookups by result",
		},
		[]string{"result"},
	)

	ABIFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_abi_fetches_total",
			Help: "Total number of ABI registry requests by outcome",
		},
		[]string{"outcome"},
	)

	ProxyResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_proxy_resolutions_total",
			Help: "Total number of proxy resolutions by matched slot",
		},
		[]string{"slot"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "compliancescanner_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliancescanner_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "compliancescanner_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "compliancescanner_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func LastScannedBlockSet(job string, blockNum uint64) {
	LastScannedBlock.WithLabelValues(job).Set(float64(blockNum))
}

func ChunkScannedInc(job string, blocks uint64, duration time.Duration) {
	ChunksScanned.WithLabelValues(job).Inc()
	BlocksScanned.WithLabelValues(job).Add(float64(blocks))
	ChunkProcessingTime.WithLabelValues(job).Observe(duration.Seconds())
}

func ChunkSizeSet(job string, size uint64) {
	ChunkSize.WithLabelValues(job).Set(float64(size))
}

func EventCollectedInc(job, event string) {
	EventsCollected.WithLabelValues(job, event).Inc()
}

func GetLogsRetryInc(job string) {
	GetLogsRetries.WithLabelValues(job).Inc()
}

func StateSaveLog(format string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StateSaves.WithLabelValues(format, status).Inc()
	StateSaveTime.WithLabelValues(format).Observe(duration.Seconds())
}

func StateRestoreInc(format, outcome string) {
	StateRestores.WithLabelValues(format, outcome).Inc()
}

func ABICacheHitInc() {
	ABICacheLookups.WithLabelValues("hit").Inc()
}

func ABICacheMissInc() {
	ABICacheLookups.WithLabelValues("miss").Inc()
}

func ABIFetchInc(outcome string) {
	ABIFetches.WithLabelValues(outcome).Inc()
}

func ProxyResolutionInc(slot string) {
	ProxyResolutions.WithLabelValues(slot).Inc()
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
