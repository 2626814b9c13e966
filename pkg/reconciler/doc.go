/*
Package reconciler makes a deployment's cache directory match the asset list
of a manifest.

A pass runs in two phases over a plan computed from the directory as it was
when the pass started:

	want     = {filename -> source}       last entry wins on duplicates
	download = want - files present
	evict    = plain files present - want

Downloads run through a bounded pool (errgroup with a limit, default 4).
Each download streams into a ".download-*" temp file in the cache directory
while a sha256 digest is computed, and is renamed into place only once the
body is complete, so a failed transfer never leaves a file that a later pass
would treat as present.

Eviction runs after the downloads finish and is best effort per file. It
runs even when some downloads failed. Sub-directories of the cache are never
walked or removed.

# Usage

	rec := reconciler.NewReconciler(apiClient, reconciler.Config{Concurrency: 4})
	result, err := rec.Reconcile(ctx, manifest.Images, cacheDir)
	if err != nil {
		// cache directory could not be created or listed
	}
	for _, f := range result.Failed {
		log.Warn().Err(f).Msg("asset not synced")
	}

Per-asset failures are reported as *AssetError values in Result.Failed and
never abort the pass.
*/
package reconciler
