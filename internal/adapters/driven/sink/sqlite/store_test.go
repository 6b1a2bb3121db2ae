package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/harvest-cli/internal/core/domain"
)

var testSchema = domain.Schema{
	Name:         "github-prs",
	Header:       []string{"Repository", "PullNumber", "Author"},
	EntityColumn: 0,
	IDColumn:     1,
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(entity string, id int64, author string) *domain.Record {
	return &domain.Record{
		Entity: domain.Entity(entity),
		ID:     id,
		Values: []string{entity, "n", author},
	}
}

func TestRecordSink_WriteAndWatermarks(t *testing.T) {
	store := newTestStore(t)
	sink, err := store.RecordSink(testSchema, false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, record("acme/widgets", 3, "alice")))
	require.NoError(t, sink.Write(ctx, record("acme/widgets", 7, "alice")))
	require.NoError(t, sink.Write(ctx, record("acme/gears", 5, "bob")))

	marks, err := sink.Watermarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[domain.Entity]int64{
		"acme/widgets": 7,
		"acme/gears":   5,
	}, marks)
}

func TestRecordSink_ReplayedRowIsIgnored(t *testing.T) {
	store := newTestStore(t)
	sink, err := store.RecordSink(testSchema, false)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, record("acme/widgets", 3, "alice")))
	require.NoError(t, sink.Write(ctx, record("acme/widgets", 3, "alice")))

	var count int
	row := store.db.QueryRow("SELECT COUNT(*) FROM records")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRecordSink_TruncateOnlyAffectsOwnHarvest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	prs, err := store.RecordSink(testSchema, false)
	require.NoError(t, err)
	require.NoError(t, prs.Write(ctx, record("acme/widgets", 3, "alice")))

	statsSchema := testSchema
	statsSchema.Name = "github-stats"
	stats, err := store.RecordSink(statsSchema, false)
	require.NoError(t, err)
	require.NoError(t, stats.Write(ctx, record("acme/widgets", 10, "alice")))

	// Reopening stats with truncate wipes only its rows.
	_, err = store.RecordSink(statsSchema, true)
	require.NoError(t, err)

	marks, err := prs.Watermarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), marks["acme/widgets"])

	marks, err = stats.Watermarks(ctx)
	require.NoError(t, err)
	assert.Empty(t, marks)
}

func TestRunStore_RecordAndHistory(t *testing.T) {
	store := newTestStore(t)
	runs := store.RunStore()
	ctx := context.Background()

	first := &domain.RunSummary{
		ID:      "run-1",
		Harvest: "github-prs",
		Started: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Ended:   time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC),
		Outcomes: []domain.EntityOutcome{
			{Entity: "acme/widgets", Completed: true, Rows: 12},
		},
	}
	second := &domain.RunSummary{
		ID:      "run-2",
		Harvest: "github-prs",
		Started: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
		Ended:   time.Date(2024, 5, 2, 10, 3, 0, 0, time.UTC),
		Outcomes: []domain.EntityOutcome{
			{Entity: "acme/widgets", Completed: false, Err: "boom"},
		},
	}
	other := &domain.RunSummary{
		ID:      "run-3",
		Harvest: "jira-comments",
		Started: time.Date(2024, 5, 3, 10, 0, 0, 0, time.UTC),
		Ended:   time.Date(2024, 5, 3, 10, 1, 0, 0, time.UTC),
	}
	require.NoError(t, runs.RecordRun(ctx, first))
	require.NoError(t, runs.RecordRun(ctx, second))
	require.NoError(t, runs.RecordRun(ctx, other))

	t.Run("filters by harvest, most recent first", func(t *testing.T) {
		history, err := runs.History(ctx, "github-prs", 10)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "run-2", history[0].ID)
		assert.Equal(t, "run-1", history[1].ID)
		assert.Equal(t, "boom", history[0].Outcomes[0].Err)
	})

	t.Run("empty harvest matches all types", func(t *testing.T) {
		history, err := runs.History(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, history, 3)
	})

	t.Run("limit bounds the result", func(t *testing.T) {
		history, err := runs.History(ctx, "", 1)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "run-3", history[0].ID)
	})
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
