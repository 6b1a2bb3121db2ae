package driven

import (
	"context"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

// PageFetcher issues one paginated request for an entity and returns the
// classified page. Each provider/harvest pair implements this interface.
//
// The fetch must be idempotent: the orchestrator repeats the same cursor
// after any failure. Rate limiting, throttle waits and transient transport
// retries are the fetcher's responsibility: a throttled request is retried
// internally after the provider-indicated wait and never surfaces to the
// caller. The fetcher never advances a cursor on failure.
//
// Error contract:
//   - domain.ErrEntityNotFound: the entity has no data; terminal success
//     for this entity only.
//   - domain.ErrMalformedResponse: the page body could not be decoded; the
//     orchestrator retries the page once, then skips it.
//   - anything else: fatal for this entity; other entities continue.
type PageFetcher interface {
	// Schema describes the rows this fetcher produces.
	Schema() domain.Schema

	// Capabilities returns what this fetcher supports.
	Capabilities() Capabilities

	// FetchPage fetches the page addressed by cursor. An empty page is the
	// terminal success signal.
	FetchPage(ctx context.Context, entity domain.Entity, cursor domain.Cursor) (*domain.Page, error)
}

// ItemFetcher refetches a single item by natural id, used to drain pending
// open items. Fetchers whose Capabilities report TracksOpenItems must also
// implement this interface.
type ItemFetcher interface {
	FetchItem(ctx context.Context, entity domain.Entity, id int64) (*domain.Item, error)
}

// Capabilities describes what a harvest fetcher supports.
type Capabilities struct {
	// Resumable indicates the harvest can resume from a persisted cursor.
	// Non-resumable harvests (contributor stats) restart from scratch each
	// run and truncate their output.
	Resumable bool

	// TracksOpenItems indicates items may be observed in a non-terminal
	// state and deferred to a draining phase. Requires ItemFetcher.
	TracksOpenItems bool

	// Paginated indicates the provider pages its responses. Informational;
	// single-shot harvests return everything in one page.
	Paginated bool

	// OffsetPaginated indicates progress is tracked by absolute item offset
	// (Jira startAt, Discourse offset) rather than page number. Decides how
	// an unreadable page is skipped.
	OffsetPaginated bool

	// NewestFirst indicates the provider serves items in descending id
	// order (Discourse feeds). Positions in such a stream are not stable
	// across runs, so every run rescans from the start and idempotence
	// rests on the id watermark captured when the run begins.
	NewestFirst bool

	// PageSize is the number of items the provider returns per page or
	// batch, when the fetcher requests it explicitly. Used to step past an
	// unreadable page on offset-paginated feeds.
	PageSize int
}
