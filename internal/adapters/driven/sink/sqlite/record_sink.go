package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
)

var _ driven.RecordSink = (*recordSink)(nil)

// recordSink implements driven.RecordSink over the records table.
type recordSink struct {
	store  *Store
	schema domain.Schema
}

// RecordSink returns a sink for one harvest type. With truncate set, rows
// previously written by that harvest are deleted first; non-resumable
// harvests rewrite their output every run.
func (s *Store) RecordSink(schema domain.Schema, truncate bool) (driven.RecordSink, error) {
	if schema.Name == "" {
		return nil, fmt.Errorf("%w: schema has no name", domain.ErrInvalidInput)
	}
	if truncate {
		if _, err := s.db.Exec("DELETE FROM records WHERE harvest = ?", schema.Name); err != nil {
			return nil, fmt.Errorf("truncating %s records: %w", schema.Name, err)
		}
	}
	return &recordSink{store: s, schema: schema}, nil
}

// Write inserts one row. Replays of an already-written row are ignored by
// the uniqueness constraint.
func (k *recordSink) Write(ctx context.Context, rec *domain.Record) error {
	if len(rec.Values) != len(k.schema.Header) {
		return fmt.Errorf("%w: row has %d values, schema %q has %d columns",
			domain.ErrInvalidInput, len(rec.Values), k.schema.Name, len(k.schema.Header))
	}

	row, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}

	_, err = k.store.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO records (harvest, entity, natural_id, row)
		VALUES (?, ?, ?, ?)
	`, k.schema.Name, string(rec.Entity), rec.ID, string(row))
	if err != nil {
		return fmt.Errorf("inserting %s row: %w", k.schema.Name, err)
	}
	return nil
}

// Watermarks returns the maximum natural id written per entity.
func (k *recordSink) Watermarks(ctx context.Context) (map[domain.Entity]int64, error) {
	rows, err := k.store.db.QueryContext(ctx, `
		SELECT entity, MAX(natural_id)
		FROM records
		WHERE harvest = ?
		GROUP BY entity
	`, k.schema.Name)
	if err != nil {
		return nil, fmt.Errorf("querying %s watermarks: %w", k.schema.Name, err)
	}
	defer rows.Close()

	marks := make(map[domain.Entity]int64)
	for rows.Next() {
		var entity string
		var id int64
		if err := rows.Scan(&entity, &id); err != nil {
			return nil, fmt.Errorf("scanning watermark: %w", err)
		}
		marks[domain.Entity(entity)] = id
	}
	return marks, rows.Err()
}

// Close is a no-op; the underlying store owns the connection.
func (k *recordSink) Close() error {
	return nil
}
