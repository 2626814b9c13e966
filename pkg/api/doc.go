/*
Package api serves the agent's local status endpoints.

	GET /health    overall health of the sync, heartbeat and api components
	GET /ready     200 once a manifest has been resolved (fetched or saved)
	GET /live      200 while the process runs
	GET /metrics   Prometheus metrics
	GET /manifest  the resolved playlist with per-asset cache paths

/manifest is what the display layer reads to build its slideshow: the
manifest images in display order, each with the absolute path it occupies in
the deployment cache and whether that file is present. Entries whose
filename could not be stored in the cache carry no path. It answers 503
until the first sync cycle resolves a manifest: with status "not_ready"
while that cycle is still retrying, and with status "failed" and error
"no manifest available" once it gave up with nothing saved. The display
renders the latter as an operator message.

The server binds to 127.0.0.1 by default. None of the endpoints change
state, so anything other than GET or HEAD is rejected.
*/
package api
