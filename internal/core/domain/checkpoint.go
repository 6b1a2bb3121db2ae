package domain

// CheckpointVersion is the current checkpoint schema version.
const CheckpointVersion = 1

// Progress is the per-entity checkpoint entry: how far paging has advanced
// and which observed items are still open and must be revisited.
type Progress struct {
	Cursor Cursor `json:"cursor"`

	// PendingOpen holds natural ids of items observed but not yet terminal
	// (an open pull request, an unresolved ticket). FIFO order; an item that
	// is still open on a drain pass keeps its position.
	PendingOpen []int64 `json:"pending_open,omitempty"`
}

// HasPending reports whether id is tracked as open.
func (p *Progress) HasPending(id int64) bool {
	for _, v := range p.PendingOpen {
		if v == id {
			return true
		}
	}
	return false
}

// AddPending appends id to the open-item list if not already present.
func (p *Progress) AddPending(id int64) {
	if !p.HasPending(id) {
		p.PendingOpen = append(p.PendingOpen, id)
	}
}

// RemovePending deletes id from the open-item list, preserving the order of
// the remaining entries.
func (p *Progress) RemovePending(id int64) {
	for i, v := range p.PendingOpen {
		if v == id {
			p.PendingOpen = append(p.PendingOpen[:i], p.PendingOpen[i+1:]...)
			return
		}
	}
}

// Checkpoint maps each entity to its harvest progress. One checkpoint
// document exists per harvest type; the whole document is rewritten after
// every mutation. Entries are created the first time an entity is seen and
// live for the life of the roster.
type Checkpoint struct {
	// Version is the schema version for future migrations.
	Version int `json:"v"`

	Entities map[Entity]*Progress `json:"entities"`
}

// NewCheckpoint creates an empty checkpoint.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		Version:  CheckpointVersion,
		Entities: make(map[Entity]*Progress),
	}
}

// Progress returns the entry for entity, creating it at the provider's
// natural beginning if absent.
func (c *Checkpoint) Progress(entity Entity) *Progress {
	if c.Entities == nil {
		c.Entities = make(map[Entity]*Progress)
	}
	p, ok := c.Entities[entity]
	if !ok {
		p = &Progress{}
		c.Entities[entity] = p
	}
	return p
}

// Drop removes the entry for an entity that left the roster.
func (c *Checkpoint) Drop(entity Entity) {
	delete(c.Entities, entity)
}

// Advance moves the entity's cursor forward. Cursors are monotonic: a
// cursor that would move backwards is ignored.
func (c *Checkpoint) Advance(entity Entity, cur Cursor) {
	p := c.Progress(entity)
	p.Cursor = p.Cursor.Max(cur)
}
