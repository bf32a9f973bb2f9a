// Package snapshot persists the per-cycle list of matched aircraft as an
// indented JSON file.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/skywatch/internal/logger"
	"github.com/rewired-gh/skywatch/internal/models"
)

// Store reads and replaces the snapshot file at a fixed path.
type Store struct {
	path string
}

// New creates a store for path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Read returns the persisted snapshot. A missing file is an empty snapshot;
// unreadable or invalid JSON is an error.
func (s *Store) Read() (models.Snapshot, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap == nil {
		snap = models.Snapshot{}
	}
	return snap, nil
}

// Load returns the prior cycle's trace history. Any read or decode failure
// is logged and treated as empty history.
func (s *Store) Load() models.History {
	snap, err := s.Read()
	if err != nil {
		logger.Warn("Could not load history, starting with empty traces: %v", err)
		return models.History{}
	}
	h := snap.History()
	logger.Debug("Loaded history for %d aircraft from %s", len(h), s.path)
	return h
}

// Save replaces the snapshot file. The data is written to a temporary file in
// the same directory and renamed over the target, so readers never observe a
// partial write.
func (s *Store) Save(snap models.Snapshot) error {
	if snap == nil {
		snap = models.Snapshot{}
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	logger.Debug("Wrote %d aircraft to %s (%s)", len(snap), s.path, humanize.Bytes(uint64(len(b))))
	return nil
}
