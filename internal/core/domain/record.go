package domain

// Record is one normalized output row.
type Record struct {
	// Entity is the harvest target the row belongs to.
	Entity Entity

	// ID is the row's natural id within the entity: pull number, review
	// comment id, issue id, topic id. The sink's watermark for an entity is
	// the maximum ID durably written.
	ID int64

	// Values are the column values, ordered per the harvest's Schema.
	Values []string
}

// Schema describes the row layout of one harvest type's output.
type Schema struct {
	// Name is the harvest type identifier, e.g. "github-prs". It names the
	// output file and the checkpoint document.
	Name string

	// Header lists the column names in emit order.
	Header []string

	// EntityColumn and IDColumn locate the entity and natural id within
	// Header, for watermark recovery from previously written rows.
	EntityColumn int
	IDColumn     int
}
