package storage

import (
	"errors"

	"github.com/cuemby/kiosksync/pkg/types"
)

// ErrNotFound is returned when a persisted item does not exist
var ErrNotFound = errors.New("not found")

// ManifestStore persists the last successfully fetched manifest, the
// fallback source of truth when the server is unreachable
type ManifestStore interface {
	// Save persists the raw /player body
	Save(raw []byte) error

	// Load returns the persisted manifest and its raw body, or ErrNotFound
	Load() (*types.Manifest, []byte, error)
}

// MarkerStore persists the restart marker timestamp
type MarkerStore interface {
	// Load returns the marker, or ErrNotFound if no restart was ever recorded
	Load() (types.UnixTime, error)

	// Save overwrites the marker
	Save(ts types.UnixTime) error
}

// HistoryStore records sync cycles and the cached asset ledger
type HistoryStore interface {
	// Cycles
	RecordCycle(record *types.SyncRecord) error
	ListCycles(limit int) ([]*types.SyncRecord, error)

	// Assets
	PutAsset(record *types.AssetRecord) error
	GetAsset(filename string) (*types.AssetRecord, error)
	ListAssets() ([]*types.AssetRecord, error)
	DeleteAsset(filename string) error

	// Utility
	Close() error
}
