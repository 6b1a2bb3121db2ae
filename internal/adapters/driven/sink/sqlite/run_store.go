package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
	"github.com/custodia-labs/harvest-cli/internal/core/ports/driven"
)

var _ driven.RunStore = (*runStore)(nil)

// runStore implements driven.RunStore over the runs table.
type runStore struct {
	store *Store
}

// RunStore returns the run history store backed by this database.
func (s *Store) RunStore() driven.RunStore {
	return &runStore{store: s}
}

func (r *runStore) RecordRun(ctx context.Context, sum *domain.RunSummary) error {
	outcomes, err := json.Marshal(sum.Outcomes)
	if err != nil {
		return fmt.Errorf("encoding outcomes: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO runs (id, harvest, started, ended, outcomes)
		VALUES (?, ?, ?, ?, ?)
	`, sum.ID, sum.Harvest, sum.Started.UTC().Format(time.RFC3339Nano),
		sum.Ended.UTC().Format(time.RFC3339Nano), string(outcomes))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", sum.ID, err)
	}
	return nil
}

func (r *runStore) History(ctx context.Context, harvest string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, harvest, started, ended, outcomes
		FROM runs
	`
	args := []any{}
	if harvest != "" {
		query += " WHERE harvest = ?"
		args = append(args, harvest)
	}
	query += " ORDER BY started DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var sums []domain.RunSummary
	for rows.Next() {
		var sum domain.RunSummary
		var started, ended, outcomes string
		if err := rows.Scan(&sum.ID, &sum.Harvest, &started, &ended, &outcomes); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if sum.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parsing run start %q: %w", started, err)
		}
		if sum.Ended, err = time.Parse(time.RFC3339Nano, ended); err != nil {
			return nil, fmt.Errorf("parsing run end %q: %w", ended, err)
		}
		if err := json.Unmarshal([]byte(outcomes), &sum.Outcomes); err != nil {
			return nil, fmt.Errorf("decoding run outcomes: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}
