/*
Package syncer resolves the manifest a kiosk should display and keeps the
deployment cache in step with it.

# State Machine

One call to Orchestrator.Run walks this machine to a terminal state:

	           ┌──────────────┐
	  start ──►│   Fetching   │◄───────────────┐
	           └──────┬───────┘                │
	      ok ┌────────┴────────┐ error         │
	         ▼                 ▼               │
	  save fallback     retries < max? ───yes──► Backoff
	  reconcile once          │ no             (min(30s*1.5^n, 300s))
	         │                ▼
	         ▼          ┌──────────┐  saved manifest  ┌───────────────────┐
	  ┌──────────┐      │ Degraded │─────────────────►│ serve it, no sync │
	  │  Cached  │      └────┬─────┘                  └───────────────────┘
	  └──────────┘           │ nothing saved
	                         ▼
	                   ┌──────────┐
	                   │  Failed  │  ErrNoFallbackAvailable
	                   └──────────┘

MaxAttempts counts retries. With the default of ten a server that never
answers sees eleven fetches and ten sleeps: 30s, 45s, 67.5s, 101.25s,
151.875s, 227.8125s, then 300s four times.

# Ordering

The raw /player body is written to the fallback store before the cache is
reconciled. A failed write is logged and the fresh manifest is still
applied. A manifest loaded from the fallback store is never reconciled: the
cache keeps whatever it held, and assets that were never downloaded simply
have no file at Outcome.LocalPath.

# Bookkeeping

When a HistoryStore is configured each Run appends a SyncRecord, records the
digest and size of every downloaded asset and drops the ledger entry of every
evicted one. Run also drives the "sync" health component, the
kiosksync_sync_state gauge and the sync.* events.

# Usage

	orch, err := syncer.NewOrchestrator(apiClient, rec, syncer.Config{
		DeploymentID: cfg.DeploymentID.String(),
		CacheDir:     cfg.CacheDir(),
		Fallback:     storage.NewFileManifestStore(cfg.FallbackPath()),
	})
	outcome, err := orch.Run(ctx)
	if errors.Is(err, syncer.ErrNoFallbackAvailable) {
		// nothing to show; tell the operator
	}
	for _, asset := range outcome.Manifest.Images {
		show(outcome.LocalPath(asset))
	}
*/
package syncer
