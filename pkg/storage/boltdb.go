package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/kiosksync/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCycles = []byte("cycles")
	bucketAssets = []byte("assets")
)

// BoltStore implements HistoryStore using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// DefaultOpenTimeout bounds the wait for the database file lock. A relaunched
// agent may start while its predecessor still holds it.
const DefaultOpenTimeout = 10 * time.Second

// NewBoltStore opens (or creates) the history database at path
func NewBoltStore(path string) (*BoltStore, error) {
	return OpenBoltStore(path, DefaultOpenTimeout)
}

// OpenBoltStore opens the history database, giving up on the file lock after
// timeout
func OpenBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCycles, bucketAssets} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// cycleKey orders cycles by start time, with the id breaking ties
func cycleKey(record *types.SyncRecord) []byte {
	key := make([]byte, 8, 8+len(record.ID))
	binary.BigEndian.PutUint64(key, uint64(record.StartedAt.UnixNano()))
	return append(key, record.ID...)
}

// Cycle operations
func (s *BoltStore) RecordCycle(record *types.SyncRecord) error {
	if record.ID == "" {
		return fmt.Errorf("sync record has no id")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCycles)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(cycleKey(record), data)
	})
}

// ListCycles returns the most recent cycles first. A limit of zero or less
// returns all of them.
func (s *BoltStore) ListCycles(limit int) ([]*types.SyncRecord, error) {
	var records []*types.SyncRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCycles).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var record types.SyncRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
		}
		return nil
	})
	return records, err
}

// Asset operations
func (s *BoltStore) PutAsset(record *types.AssetRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAssets)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.Filename), data)
	})
}

func (s *BoltStore) GetAsset(filename string) (*types.AssetRecord, error) {
	var record types.AssetRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAssets).Get([]byte(filename))
		if data == nil {
			return fmt.Errorf("asset %s: %w", filename, ErrNotFound)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *BoltStore) ListAssets() ([]*types.AssetRecord, error) {
	var records []*types.AssetRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAssets).ForEach(func(k, v []byte) error {
			var record types.AssetRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	return records, err
}

func (s *BoltStore) DeleteAsset(filename string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAssets).Delete([]byte(filename))
	})
}
