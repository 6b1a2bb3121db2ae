package driven

import (
	"context"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

// RecordSink accepts normalized rows. The engine requires write-then-
// checkpoint ordering: a Write that returns nil must be durable before the
// corresponding checkpoint save happens.
type RecordSink interface {
	// Write appends one row.
	Write(ctx context.Context, rec *domain.Record) error

	// Watermarks returns the maximum natural id already durably written per
	// entity, recovered from previously emitted rows. Used once at startup
	// to correct a checkpoint that lags the true progress.
	Watermarks(ctx context.Context) (map[domain.Entity]int64, error)

	// Close flushes and releases the sink.
	Close() error
}

// Roster filters raw items by tracked-identity membership and supplies the
// enrichment fields (name, email, title) for accepted rows.
type Roster interface {
	Lookup(key string) (*domain.Member, bool)
}

// RunStore records run summaries for the operator's history view.
type RunStore interface {
	RecordRun(ctx context.Context, sum *domain.RunSummary) error

	// History returns recent runs for a harvest type, most recent first.
	// Empty harvest matches all types.
	History(ctx context.Context, harvest string, limit int) ([]domain.RunSummary, error)
}
