package storage

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/kiosksync/pkg/types"
)

// FileMarkerStore keeps the restart marker as a decimal integer file
type FileMarkerStore struct {
	path string
}

// NewFileMarkerStore creates a marker store backed by path
func NewFileMarkerStore(path string) *FileMarkerStore {
	return &FileMarkerStore{path: path}
}

// Path returns the backing file path
func (s *FileMarkerStore) Path() string {
	return s.path
}

// Load reads the marker
func (s *FileMarkerStore) Load() (types.UnixTime, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read restart marker: %w", err)
	}

	value := strings.TrimSpace(string(data))
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("restart marker %s is corrupt: %q", s.path, value)
	}
	return types.UnixTime(ts), nil
}

// Save overwrites the marker
func (s *FileMarkerStore) Save(ts types.UnixTime) error {
	return writeFileAtomic(s.path, []byte(strconv.FormatInt(int64(ts), 10)), 0644)
}
