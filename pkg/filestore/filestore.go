// Package filestore persists the dashboard document as a single
// pretty-printed JSON file. There is no partial update: every save
// replaces the whole file and the last write wins.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxSize is the largest document the store accepts, matching the config
// endpoint's request body ceiling.
const MaxSize = 10 << 20 // 10 MB

// ErrTooLarge is returned when a document exceeds MaxSize.
var ErrTooLarge = errors.New("document exceeds size limit")

// Store reads and writes one JSON document at a fixed path.
type Store struct {
	path string
}

// New creates a store for the given file path. The parent directory is
// created on first save.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the raw persisted document. A missing file is a first run
// and returns nil with no error; the caller falls back to defaults.
func (s *Store) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return data, nil
}

// Save replaces the persisted document. The write goes to a temporary file
// in the same directory followed by a rename, so readers never observe a
// partial document.
func (s *Store) Save(data []byte) error {
	if len(data) > MaxSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
