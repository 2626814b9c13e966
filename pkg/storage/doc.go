/*
Package storage persists the agent's local state.

Three stores live under the application data directory:

  - FileManifestStore (player.json): the raw body of the last successfully
    fetched /player response, indented. It is the fallback the sync
    orchestrator resolves when the server stays unreachable.
  - FileMarkerStore (restmp): a decimal unix timestamp recording the last
    server-requested restart that was acted on.
  - BoltStore (kiosksync.db): a bbolt database with a "cycles" bucket of
    SyncRecords keyed by start time and an "assets" bucket holding the digest
    and size of every file in the cache, keyed by filename.

Both file stores write through a temp file and rename, so a crash mid-write
leaves the previous content intact. Neither file lives inside the deployment
cache directory, which the reconciler owns exclusively.
*/
package storage
