package driven

import (
	"context"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

// CheckpointStore persists harvest progress. One store instance backs one
// harvest type's checkpoint document.
type CheckpointStore interface {
	// Load reads the checkpoint. A missing document is an empty checkpoint,
	// not an error.
	Load(ctx context.Context) (*domain.Checkpoint, error)

	// Save atomically replaces the persisted checkpoint. A crash mid-save
	// must leave the previous valid document intact. Called after every
	// accepted item, so a crash re-works at most one in-flight item.
	// A failed save wraps domain.ErrCheckpointIO and is fatal to the run.
	Save(ctx context.Context, cp *domain.Checkpoint) error
}
