/*
Package types defines the data structures shared by the kiosksync packages.

The types fall into two groups:

Wire documents, decoded from the content server:
  - Manifest: the /player playlist (ordered assets plus slide configuration)
  - Asset: one playlist entry; Filename is the cache key, Source() the remote location
  - ControlResponse: the /control heartbeat carrying the restart timestamp

Agent bookkeeping, persisted locally:
  - SyncState / ManifestSource: orchestrator state machine values
  - SyncRecord: summary of one sync cycle
  - AssetRecord: digest and size of one cached file

# Manifest Order

Manifest.Images is kept in server order because that order is the display
order. Filenames are assumed unique; when they are not, the last entry wins
both in the reconciler's download plan and on disk.

# Timestamps

UnixTime decodes both JSON numbers and numeric strings, since control
responses have been observed with either encoding.
*/
package types
