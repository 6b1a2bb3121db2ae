package domain

import "errors"

// Domain errors represent harvesting failures the engine reacts to.
// Provider packages map HTTP-level failures onto these sentinels so the
// orchestrator never inspects status codes directly.
var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEntityNotFound indicates the harvest target has no data or is not
	// accessible. Terminal for that entity only; the run continues.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrMalformedResponse indicates a provider response could not be
	// decoded. The page is retried once, then skipped with a warning.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrCheckpointIO indicates checkpoint state could not be persisted.
	// Fatal to the run: resume integrity cannot be guaranteed.
	ErrCheckpointIO = errors.New("checkpoint write failed")

	// ErrInvalidCursor indicates a persisted cursor could not be decoded.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDrainUnsupported indicates the harvest tracks open items but its
	// fetcher cannot refetch a single item by id.
	ErrDrainUnsupported = errors.New("item drain not supported")
)
