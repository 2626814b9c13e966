/*
Package client talks to the signage content server.

The server exposes two JSON endpoints, both authenticated by query
parameters only:

	GET {tenant}/player?deployment_id=42&password=...   playlist manifest
	GET {tenant}/control?deployment_id=42&password=...  restart heartbeat

Asset bodies are plain GETs of each asset's url (or path, resolved against
the tenant URL).

# Architecture

	┌──────────── pkg/syncer ────────────┐   ┌──── pkg/heartbeat ────┐
	│ FetchManifest    Download (via      │   │ FetchControl          │
	│                  pkg/reconciler)    │   │                       │
	└──────────┬───────────────┬─────────┘   └──────────┬────────────┘
	           │               │                         │
	┌──────────▼───────────────▼──── pkg/client ─────────▼────────────┐
	│  Fetch: 10s deadline, JSON decode, raw body returned             │
	│  Download: streaming body, own (longer) deadline                 │
	│  classify: timeout / transport / status / decode                 │
	└──────────────────────────────┬──────────────────────────────────┘
	                               │ HTTPS
	                               ▼
	                        Content server

# Errors

Every error is recoverable and falls into one of four kinds:

  - ErrTimeout: the deadline passed before a full response arrived
  - ErrTransport: connection refused, DNS or TLS failure
  - *StatusError: the server answered with a non-2xx status
  - ErrDecode: the body was not the expected JSON document

IsUnreachable groups the first two, which is what the sync orchestrator's
backoff and the operator-facing log messages care about.

# Usage

	c, err := client.NewClient(client.Config{
		ServerURL:    "https://signage.prod.chrisprimes.com",
		DeploymentID: "42",
		Password:     "secret",
	})
	manifest, raw, err := c.FetchManifest(ctx)

The password travels in the query string, so request URLs are never logged.
*/
package client
