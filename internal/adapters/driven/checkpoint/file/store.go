package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.CheckpointStore = (*Store)(nil)

// Store persists one harvest's checkpoint as a JSON document next to the
// harvest output, named "<harvest>_progress.json". Saves go through a
// temporary file in the same directory followed by a rename, so a crash
// mid-save leaves the previous checkpoint intact.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a checkpoint store for the named harvest under dir.
func NewStore(dir, harvest string) (*Store, error) {
	if harvest == "" {
		return nil, fmt.Errorf("%w: empty harvest name", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating checkpoint directory: %w", err)
	}
	return &Store{path: filepath.Join(dir, harvest+"_progress.json")}, nil
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted checkpoint. A missing file is a fresh start, not
// an error.
func (s *Store) Load(_ context.Context) (*domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewCheckpoint(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", domain.ErrCheckpointIO, s.path, err)
	}

	cp := domain.NewCheckpoint()
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", domain.ErrCheckpointIO, s.path, err)
	}
	if cp.Version != domain.CheckpointVersion {
		return nil, fmt.Errorf("%w: %s has version %d, want %d",
			domain.ErrCheckpointIO, s.path, cp.Version, domain.CheckpointVersion)
	}
	return cp, nil
}

// Save atomically replaces the checkpoint document.
func (s *Store) Save(_ context.Context, cp *domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding checkpoint: %v", domain.ErrCheckpointIO, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", domain.ErrCheckpointIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrCheckpointIO, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: syncing %s: %v", domain.ErrCheckpointIO, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %v", domain.ErrCheckpointIO, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %v", domain.ErrCheckpointIO, s.path, err)
	}
	return nil
}
