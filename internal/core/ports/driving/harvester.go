// Package driving defines the interfaces through which the CLI drives the
// harvesting engine.
package driving

import (
	"context"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

// Harvester runs one harvest type across its entities to completion,
// resuming from persisted progress.
type Harvester interface {
	Run(ctx context.Context) (*domain.RunSummary, error)
}
