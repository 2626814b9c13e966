package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync metrics
	SyncAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosksync_sync_attempts_total",
			Help: "Total number of manifest fetch attempts by result",
		},
		[]string{"result"},
	)

	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosksync_sync_cycles_total",
			Help: "Total number of completed sync cycles by manifest source",
		},
		[]string{"source"},
	)

	SyncState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiosksync_sync_state",
			Help: "Current sync orchestrator state (1 = active state)",
		},
		[]string{"state"},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiosksync_fetch_duration_seconds",
			Help:    "Content server request duration in seconds by endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Cache metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiosksync_reconciliation_duration_seconds",
			Help:    "Time taken to reconcile the cache against a manifest",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	AssetDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosksync_asset_downloads_total",
			Help: "Total number of asset downloads by result",
		},
		[]string{"result"},
	)

	AssetDownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosksync_asset_download_bytes_total",
			Help: "Total bytes written to the cache by asset downloads",
		},
	)

	AssetEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosksync_asset_evictions_total",
			Help: "Total number of cache evictions by result",
		},
		[]string{"result"},
	)

	CacheFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosksync_cache_files",
			Help: "Number of plain files in the deployment cache directory",
		},
	)

	CacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosksync_cache_bytes",
			Help: "Total size of plain files in the deployment cache directory",
		},
	)

	// Heartbeat metrics
	HeartbeatTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosksync_heartbeat_ticks_total",
			Help: "Total number of heartbeat ticks by outcome",
		},
		[]string{"outcome"},
	)

	RestartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosksync_restarts_total",
			Help: "Total number of server-requested restarts signalled",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(SyncAttemptsTotal)
	prometheus.MustRegister(SyncCyclesTotal)
	prometheus.MustRegister(SyncState)
	prometheus.MustRegister(FetchDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(AssetDownloadsTotal)
	prometheus.MustRegister(AssetDownloadBytes)
	prometheus.MustRegister(AssetEvictionsTotal)
	prometheus.MustRegister(CacheFiles)
	prometheus.MustRegister(CacheBytes)
	prometheus.MustRegister(HeartbeatTicksTotal)
	prometheus.MustRegister(RestartsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetSyncState marks state as the single active sync state
func SetSyncState(state string, all []string) {
	for _, s := range all {
		if s == state {
			SyncState.WithLabelValues(s).Set(1)
		} else {
			SyncState.WithLabelValues(s).Set(0)
		}
	}
}
