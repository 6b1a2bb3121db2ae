// Package services implements the harvesting engine: startup reconciliation
// of checkpoints against sink watermarks, the per-entity paging and draining
// state machine, and the bounded worker pool used by comment harvests.
package services
