/*
Package metrics provides Prometheus metrics and component health tracking for
the kiosk agent.

All metrics are registered on the default Prometheus registry at package init
and exposed through Handler(), which the api package mounts at /metrics.

# Metric Families

Sync:
  - kiosksync_sync_attempts_total{result}: manifest fetch attempts (success, failure)
  - kiosksync_sync_cycles_total{source}: finished cycles (fetched, fallback, none)
  - kiosksync_sync_state{state}: 1 for the orchestrator's current state
  - kiosksync_fetch_duration_seconds{endpoint}: /player and /control latency

Cache:
  - kiosksync_reconciliation_duration_seconds
  - kiosksync_asset_downloads_total{result}
  - kiosksync_asset_download_bytes_total
  - kiosksync_asset_evictions_total{result}
  - kiosksync_cache_files, kiosksync_cache_bytes: sampled by Collector

Heartbeat:
  - kiosksync_heartbeat_ticks_total{outcome}: noop, restart, error, not_success
  - kiosksync_restarts_total

# Health

Components report themselves with RegisterComponent, UpdateComponent and
MarkDegraded. The overall status is "unhealthy" if any component is
unhealthy, "degraded" if any is degraded, else "healthy". Readiness only
requires the sync component: once a manifest has been resolved, from the
server or from the fallback store, the display layer has something to show.

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
*/
package metrics
