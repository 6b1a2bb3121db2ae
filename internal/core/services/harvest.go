package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driving"
	"github.com/custodia-labs/harvest-cli/internal/logger"
)

// Ensure Harvester implements the driving interface.
var _ driving.Harvester = (*Harvester)(nil)

// HarvesterConfig wires one harvest type's collaborators.
type HarvesterConfig struct {
	// Entities are the harvest targets, enumerated before the run.
	Entities []domain.Entity

	Fetcher driven.PageFetcher

	// Items drains pending open items. Required when the fetcher's
	// capabilities report TracksOpenItems.
	Items driven.ItemFetcher

	Checkpoints driven.CheckpointStore
	Sink        driven.RecordSink
	Roster      driven.Roster

	// Runs records the final summary. Optional.
	Runs driven.RunStore

	// Workers bounds concurrent entity harvests. Zero or one means
	// sequential.
	Workers int
}

// Harvester drives the per-entity harvest loop: reconcile, page, filter,
// emit, checkpoint, drain. One instance handles one harvest type.
type Harvester struct {
	cfg  HarvesterConfig
	caps driven.Capabilities

	// mu serializes sink writes and checkpoint flushes. Held only for the
	// duration of a single row write or checkpoint save, never across a
	// network call.
	mu sync.Mutex
}

// NewHarvester validates the wiring and returns a Harvester.
func NewHarvester(cfg HarvesterConfig) (*Harvester, error) {
	if cfg.Fetcher == nil || cfg.Checkpoints == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("new harvester: %w", domain.ErrInvalidInput)
	}
	caps := cfg.Fetcher.Capabilities()
	if caps.TracksOpenItems && cfg.Items == nil {
		return nil, fmt.Errorf("new harvester: %w", domain.ErrDrainUnsupported)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Harvester{cfg: cfg, caps: caps}, nil
}

// Run harvests every entity to completion and returns the run summary.
// A checkpoint persistence failure aborts the run; any other per-entity
// failure is recorded in the summary and the remaining entities continue.
func (h *Harvester) Run(ctx context.Context) (*domain.RunSummary, error) {
	sum := &domain.RunSummary{
		ID:      uuid.NewString(),
		Harvest: h.cfg.Fetcher.Schema().Name,
		Started: time.Now(),
	}

	cp, err := h.cfg.Checkpoints.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var marks map[domain.Entity]int64
	if h.caps.Resumable {
		marks, err = h.cfg.Sink.Watermarks(ctx)
		if err != nil {
			return nil, fmt.Errorf("recover watermarks: %w", err)
		}
	}

	// Reconcile every entity up front so the checkpoint map is fully
	// populated before workers start; workers then only touch their own
	// entity's entry.
	for _, e := range h.cfg.Entities {
		if !h.caps.Resumable {
			*cp.Progress(e) = domain.Progress{}
			continue
		}
		Reconcile(cp, e, marks[e])
		if h.caps.NewestFirst {
			// A newest-first feed shifts positions as items arrive, so a
			// persisted page or offset points at the wrong slice of the
			// stream. Rescan from the start; the id watermark keeps the
			// rescan idempotent.
			p := cp.Progress(e)
			p.Cursor = domain.Cursor{ItemID: p.Cursor.ItemID}
		}
	}

	outcomes := make([]domain.EntityOutcome, len(h.cfg.Entities))
	runErr := h.forEachEntity(ctx, func(ctx context.Context, i int, e domain.Entity) error {
		out, err := h.harvestEntity(ctx, cp, e)
		outcomes[i] = out
		return err
	})

	sum.Ended = time.Now()
	sum.Outcomes = outcomes

	if h.cfg.Runs != nil {
		if err := h.cfg.Runs.RecordRun(ctx, sum); err != nil {
			logger.Warn("record run %s: %v", sum.ID, err)
		}
	}
	if runErr != nil {
		return sum, runErr
	}
	return sum, nil
}

// forEachEntity runs fn per entity, sequentially or through the bounded
// worker pool. A returned error (checkpoint failure, cancelled context)
// stops the whole run.
func (h *Harvester) forEachEntity(
	ctx context.Context,
	fn func(ctx context.Context, i int, e domain.Entity) error,
) error {
	if h.cfg.Workers <= 1 {
		for i, e := range h.cfg.Entities {
			if err := fn(ctx, i, e); err != nil {
				return err
			}
		}
		return nil
	}

	pool := NewPool(h.cfg.Workers)
	return pool.Run(ctx, len(h.cfg.Entities), func(ctx context.Context, i int) error {
		return fn(ctx, i, h.cfg.Entities[i])
	})
}

// harvestEntity runs the Start -> Paging -> Draining -> Done state machine
// for one entity. Terminal entity failures are folded into the outcome; the
// returned error is reserved for failures that must stop the run.
func (h *Harvester) harvestEntity(
	ctx context.Context,
	cp *domain.Checkpoint,
	entity domain.Entity,
) (domain.EntityOutcome, error) {
	out := domain.EntityOutcome{Entity: entity}
	p := cp.Progress(entity)

	rows, err := h.page(ctx, cp, entity, p)
	out.Rows += rows
	if err == nil {
		rows, err = h.drain(ctx, cp, entity, p)
		out.Rows += rows
	}
	out.Pending = len(p.PendingOpen)

	switch {
	case err == nil:
		out.Completed = true
	case errors.Is(err, domain.ErrCheckpointIO) || errors.Is(err, context.Canceled):
		return out, err
	default:
		// Terminal for this entity only; the harvest moves on.
		out.Err = err.Error()
		logger.Error("entity %s: %v", entity, err)
	}
	return out, nil
}

// page pulls successive pages from the reconciled cursor until the provider
// signals the end of the stream.
func (h *Harvester) page(
	ctx context.Context,
	cp *domain.Checkpoint,
	entity domain.Entity,
	p *domain.Progress,
) (int, error) {
	rows := 0
	retriedMalformed := false

	// The watermark at the start of paging. Newest-first feeds compare
	// against this instead of the live cursor, which rises to the top of
	// the stream on the first item.
	watermark := p.Cursor.ItemID

	for {
		page, err := h.cfg.Fetcher.FetchPage(ctx, entity, p.Cursor)
		switch {
		case errors.Is(err, domain.ErrMalformedResponse):
			if !retriedMalformed {
				retriedMalformed = true
				logger.Warn("entity %s: malformed page at %+v, retrying once", entity, p.Cursor)
				continue
			}
			// Recurring decode failure: skip the page, do not advance the
			// item cursor past anything unseen.
			next := h.skipCursor(p.Cursor)
			logger.Warn("entity %s: malformed page at %+v recurred, skipping to %+v", entity, p.Cursor, next)
			if err := h.advancePosition(ctx, cp, p, next); err != nil {
				return rows, err
			}
			retriedMalformed = false
			continue
		case err != nil:
			return rows, err
		}
		retriedMalformed = false

		if page.Empty() {
			return rows, nil
		}

		for _, item := range page.Items {
			n, err := h.processItem(ctx, cp, entity, p, item, watermark)
			rows += n
			if err != nil {
				return rows, err
			}
		}

		if err := h.advancePosition(ctx, cp, p, page.Next); err != nil {
			return rows, err
		}
	}
}

// processItem routes one raw item: skip already-processed, defer open,
// filter through the roster, emit and checkpoint.
func (h *Harvester) processItem(
	ctx context.Context,
	cp *domain.Checkpoint,
	entity domain.Entity,
	p *domain.Progress,
	item *domain.Item,
	watermark int64,
) (int, error) {
	seen := p.Cursor.ItemID
	if h.caps.NewestFirst {
		// The live cursor holds the stream's newest id after the first
		// item; judging a descending feed by it would drop the rest.
		seen = watermark
	}
	if h.caps.Resumable && item.ID != 0 && item.ID <= seen {
		logger.Debug("entity %s: item %d already processed", entity, item.ID)
		return 0, nil
	}
	if p.HasPending(item.ID) {
		// Tracked from an earlier run; the draining phase owns it.
		return 0, nil
	}

	switch item.State {
	case domain.ItemOpen:
		h.mu.Lock()
		defer h.mu.Unlock()
		p.AddPending(item.ID)
		logger.Debug("entity %s: item %d still open, deferred", entity, item.ID)
		return 0, h.saveLocked(ctx, cp)

	case domain.ItemSkip:
		h.mu.Lock()
		defer h.mu.Unlock()
		p.Cursor = p.Cursor.Merge(item.ID)
		return 0, h.saveLocked(ctx, cp)

	default: // domain.ItemTerminal
		return h.emit(ctx, cp, entity, p, item)
	}
}

// emit writes the item's rows (if the author passes the roster filter) and
// then advances the checkpoint. Write-then-checkpoint ordering: the row is
// durable before the cursor moves past it.
func (h *Harvester) emit(
	ctx context.Context,
	cp *domain.Checkpoint,
	entity domain.Entity,
	p *domain.Progress,
	item *domain.Item,
) (int, error) {
	accepted := item.Author == ""
	if !accepted && h.cfg.Roster != nil {
		_, accepted = h.cfg.Roster.Lookup(item.Author)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rows := 0
	if accepted {
		for _, rec := range item.Records {
			if err := h.cfg.Sink.Write(ctx, rec); err != nil {
				return rows, fmt.Errorf("write record %d: %w", rec.ID, err)
			}
			rows++
		}
	}

	p.Cursor = p.Cursor.Merge(item.ID)
	return rows, h.saveLocked(ctx, cp)
}

// drain refetches each pending open item individually, emitting the ones
// that reached terminal state and keeping the rest in place. The harvest
// terminates even when some items stay open across runs.
func (h *Harvester) drain(
	ctx context.Context,
	cp *domain.Checkpoint,
	entity domain.Entity,
	p *domain.Progress,
) (int, error) {
	if len(p.PendingOpen) == 0 || h.cfg.Items == nil {
		return 0, nil
	}

	rows := 0
	snapshot := make([]int64, len(p.PendingOpen))
	copy(snapshot, p.PendingOpen)

	for _, id := range snapshot {
		item, err := h.cfg.Items.FetchItem(ctx, entity, id)
		switch {
		case errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrEntityNotFound):
			// The item vanished upstream; drop it rather than retry forever.
			h.mu.Lock()
			p.RemovePending(id)
			err = h.saveLocked(ctx, cp)
			h.mu.Unlock()
			if err != nil {
				return rows, err
			}
			logger.Warn("entity %s: pending item %d no longer exists, dropped", entity, id)
			continue
		case err != nil:
			return rows, err
		}

		if item.State == domain.ItemOpen {
			// Still open: keep its position for the next run.
			logger.Debug("entity %s: item %d still open", entity, id)
			continue
		}

		n, err := h.emitDrained(ctx, cp, p, item)
		rows += n
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

// emitDrained writes a drained item's rows and removes it from the pending
// list in a single critical section, so the list never holds an emitted item.
func (h *Harvester) emitDrained(
	ctx context.Context,
	cp *domain.Checkpoint,
	p *domain.Progress,
	item *domain.Item,
) (int, error) {
	accepted := item.Author == ""
	if !accepted && h.cfg.Roster != nil {
		_, accepted = h.cfg.Roster.Lookup(item.Author)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rows := 0
	if accepted && item.State == domain.ItemTerminal {
		for _, rec := range item.Records {
			if err := h.cfg.Sink.Write(ctx, rec); err != nil {
				return rows, fmt.Errorf("write record %d: %w", rec.ID, err)
			}
			rows++
		}
	}
	p.RemovePending(item.ID)
	return rows, h.saveLocked(ctx, cp)
}

// advancePosition moves the positional cursor fields (page, offset) to the
// next page and persists. The item cursor is merged separately as items are
// processed.
func (h *Harvester) advancePosition(
	ctx context.Context,
	cp *domain.Checkpoint,
	p *domain.Progress,
	next domain.Cursor,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := p.Cursor
	cur.Page = next.Page
	cur.Offset = next.Offset
	p.Cursor = p.Cursor.Max(cur)
	return h.saveLocked(ctx, cp)
}

// skipPageSize is the fallback offset stride used to abandon an unreadable
// page when the fetcher does not declare its page size.
const skipPageSize = 100

// skipCursor computes the cursor addressing the page after the current one,
// used when a malformed page is abandoned. Offset-paginated feeds step by
// the fetcher's declared page size; anything larger would jump past items
// that were never fetched.
func (h *Harvester) skipCursor(cur domain.Cursor) domain.Cursor {
	next := cur
	if h.caps.OffsetPaginated {
		stride := h.caps.PageSize
		if stride == 0 {
			stride = skipPageSize
		}
		next.Offset += stride
		return next
	}
	if next.Page == 0 {
		next.Page = 1
	}
	next.Page++
	return next
}

// saveLocked persists the checkpoint. Callers hold h.mu.
func (h *Harvester) saveLocked(ctx context.Context, cp *domain.Checkpoint) error {
	if err := h.cfg.Checkpoints.Save(ctx, cp); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCheckpointIO, err)
	}
	return nil
}
