package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/kiosksync/pkg/types"
)

// FileManifestStore keeps the fallback manifest as an indented JSON file
type FileManifestStore struct {
	path string
}

// NewFileManifestStore creates a manifest store backed by path
func NewFileManifestStore(path string) *FileManifestStore {
	return &FileManifestStore{path: path}
}

// Path returns the backing file path
func (s *FileManifestStore) Path() string {
	return s.path
}

// Save writes raw atomically. The previous fallback survives any failure.
func (s *FileManifestStore) Save(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("manifest is not valid JSON: %w", err)
	}
	buf.WriteByte('\n')

	return writeFileAtomic(s.path, buf.Bytes(), 0644)
}

// Load reads and decodes the fallback manifest
func (s *FileManifestStore) Load() (*types.Manifest, []byte, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read fallback manifest: %w", err)
	}

	manifest, err := types.DecodeManifest(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback manifest %s is corrupt: %w", s.path, err)
	}
	return manifest, raw, nil
}

// writeFileAtomic writes data to a temp file beside path and renames it
// into place
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
