// Package domain contains the core types of the harvesting engine: entities,
// cursors, checkpoints, items, records and the roster. Domain types have no
// dependencies on adapters or providers; provider packages translate their
// API responses into these types.
package domain
