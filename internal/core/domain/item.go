package domain

// ItemState classifies a raw item returned by a provider page.
type ItemState int

const (
	// ItemTerminal means the item reached a final state (merged or closed
	// pull request, resolved ticket) and need not be revisited.
	ItemTerminal ItemState = iota

	// ItemOpen means the item is not yet terminal and must be revisited on
	// a later run before it can be emitted.
	ItemOpen

	// ItemSkip means the item is terminal but produces no output row
	// (a closed-unmerged pull request). The cursor still advances past it.
	ItemSkip
)

// Item is one raw unit returned by a provider page: a pull request, a review
// comment, a ticket, a forum post. The provider has already classified it
// and extracted the output row where one applies.
type Item struct {
	// ID is the item's natural id, used for cursor comparison and for
	// pending-open membership tests.
	ID int64

	// Author is the identity key run through the roster filter. Empty means
	// the provider pre-filtered and the item is always accepted.
	Author string

	State ItemState

	// Records are the normalized output rows for this item. Usually one;
	// weekly stats items carry several. Nil for open or skipped items.
	Records []*Record
}

// Page is the result of one paginated request: the items plus the cursor to
// request the following page with. A page with no items is the terminal
// success signal for the entity's stream.
type Page struct {
	Items []*Item

	// Next is the cursor for the following page. Providers advance the
	// positional fields (Page, Offset); the orchestrator advances ItemID as
	// items are processed.
	Next Cursor
}

// Empty reports whether the page terminates the stream.
func (p *Page) Empty() bool {
	return len(p.Items) == 0
}
