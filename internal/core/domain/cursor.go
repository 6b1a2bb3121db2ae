package domain

// Entity identifies one harvest target: a repository, a Jira project key,
// a roster member key, or a forum username. The set of entities for a run is
// supplied externally and immutable once enumerated.
type Entity string

// Cursor is a provider-specific progress marker within one entity's
// paginated stream. Providers use the fields they need and leave the rest
// zero: GitHub pull harvests use Page+ItemID, Jira harvests use Offset,
// forum post harvests use Page alone.
//
// Cursors are totally ordered per provider/entity so "further along" is
// well-defined; see Compare.
type Cursor struct {
	// Page is a 1-based page number. Zero means the harvest has not started.
	Page int `json:"page,omitempty"`

	// ItemID is the natural id of the last processed item.
	ItemID int64 `json:"item_id,omitempty"`

	// Offset is an absolute item offset (Jira startAt, Discourse offset).
	Offset int `json:"offset,omitempty"`
}

// Compare returns -1, 0 or 1 ordering c against other.
// The order is lexicographic on (ItemID, Page, Offset): the item id is the
// authoritative progress signal where present, page and offset break ties
// for providers that only track position.
func (c Cursor) Compare(other Cursor) int {
	switch {
	case c.ItemID != other.ItemID:
		if c.ItemID < other.ItemID {
			return -1
		}
		return 1
	case c.Page != other.Page:
		if c.Page < other.Page {
			return -1
		}
		return 1
	case c.Offset != other.Offset:
		if c.Offset < other.Offset {
			return -1
		}
		return 1
	}
	return 0
}

// Max returns the further-along of the two cursors.
func (c Cursor) Max(other Cursor) Cursor {
	if c.Compare(other) >= 0 {
		return c
	}
	return other
}

// Merge raises the cursor's ItemID to the given sink watermark if the
// watermark is ahead. Page and Offset are left untouched: the watermark is
// recovered from written rows and says nothing about page position.
func (c Cursor) Merge(watermark int64) Cursor {
	if watermark > c.ItemID {
		c.ItemID = watermark
	}
	return c
}

// IsZero reports whether the cursor marks the provider's natural beginning.
func (c Cursor) IsZero() bool {
	return c.Page == 0 && c.ItemID == 0 && c.Offset == 0
}
