package services

import (
	"github.com/custodia-labs/harvest-cli/internal/core/domain"

	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// Reconcile produces the authoritative resume cursor for an entity by
// merging its checkpoint entry with the watermark recovered from the sink.
//
// Three cases, mirroring what a partial failure can leave behind:
//   - no checkpoint entry: start from the provider's natural beginning.
//   - checkpoint at or ahead of the watermark: trust the checkpoint
//     (write-then-checkpoint ordering makes checkpoint-ahead-of-sink
//     unreachable for emitted rows; see DESIGN.md).
//   - watermark ahead of the checkpoint: the process died after a row was
//     durably written but before the checkpoint flushed. The watermark wins.
//
// Pending open items are untouched: they are retried regardless of cursor.
func Reconcile(cp *domain.Checkpoint, entity domain.Entity, watermark int64) domain.Cursor {
	p := cp.Progress(entity)
	merged := p.Cursor.Merge(watermark)
	if merged != p.Cursor {
		logger.Info("reconcile %s: checkpoint id %d behind sink watermark %d, resuming from watermark",
			entity, p.Cursor.ItemID, watermark)
	}
	p.Cursor = merged
	return merged
}
