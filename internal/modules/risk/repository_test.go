package risk

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/riskguard/internal/database"
)

// setupTestDB creates an in-memory SQLite database with the risk schema
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := database.Schema("risk")
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func newTestRepository(t *testing.T) *Repository {
	repo := NewRepository(setupTestDB(t), testLogger())
	repo.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }
	return repo
}

func event(date time.Time, category Category, multiplier float64, runID string) Event {
	prior := 1.0
	return Event{
		Date:       date,
		Category:   category,
		PriorValue: &prior,
		Multiplier: multiplier,
		Limit:      multiplier,
		RunID:      runID,
	}
}

func TestRepository_InsertAndList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	_, err := repo.Insert(ctx, event(d2, CategoryVolatility, 0.8, "run-a"))
	require.NoError(t, err)
	id, err := repo.Insert(ctx, event(d1, CategoryLeverage, 0.5, "run-a"))
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	noPrior := event(d1, CategoryJump, 0.9, "run-b")
	noPrior.PriorValue = nil
	_, err = repo.Insert(ctx, noPrior)
	require.NoError(t, err)

	all, err := repo.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	// ordered by date, then insertion
	assert.Equal(t, CategoryLeverage, all[0].Category)
	assert.Equal(t, CategoryJump, all[1].Category)
	assert.Equal(t, CategoryVolatility, all[2].Category)

	assert.True(t, d1.Equal(all[0].Date))
	assert.Equal(t, 0.5, all[0].Multiplier)
	assert.Equal(t, "run-a", all[0].RunID)
	require.NotNil(t, all[0].PriorValue)
	assert.Equal(t, 1.0, *all[0].PriorValue)
	require.NotNil(t, all[0].RecordedAt)
	assert.True(t, repo.now().Equal(*all[0].RecordedAt))
	assert.Nil(t, all[1].PriorValue)
}

func TestRepository_ListFilters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		repo.Record(event(base.AddDate(0, 0, i), CategoryLeverage, 0.5, "run-a"))
		repo.Record(event(base.AddDate(0, 0, i), CategoryJump, 0.7, "run-b"))
	}

	tests := []struct {
		name     string
		filter   EventFilter
		expected int
	}{
		{"no filter", EventFilter{}, 10},
		{"category", EventFilter{Category: CategoryJump}, 5},
		{"run", EventFilter{RunID: "run-a"}, 5},
		{"from inclusive", EventFilter{From: base.AddDate(0, 0, 3)}, 4},
		{"to exclusive", EventFilter{To: base.AddDate(0, 0, 2)}, 4},
		{"window and category", EventFilter{From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 3), Category: CategoryLeverage}, 2},
		{"limit", EventFilter{Limit: 3}, 3},
		{"recorded before now", EventFilter{RecordedBefore: repo.now()}, 0},
		{"recorded before later", EventFilter{RecordedBefore: repo.now().Add(time.Hour)}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.expected)
		})
	}
}

func TestRepository_CountByCategory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	repo.Record(event(testDate, CategoryLeverage, 0.5, ""))
	repo.Record(event(testDate, CategoryLeverage, 0.6, ""))
	repo.Record(event(testDate, CategoryCorrelation, 0.9, ""))

	counts, err := repo.CountByCategory(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, map[Category]int{
		CategoryLeverage:    2,
		CategoryCorrelation: 1,
	}, counts)

	counts, err = repo.CountByCategory(ctx, EventFilter{Category: CategoryJump})
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestRepository_DeleteRecordedBefore(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	old := repo.now
	repo.now = func() time.Time { return old().AddDate(0, 0, -30) }
	repo.Record(event(testDate, CategoryLeverage, 0.5, ""))
	repo.Record(event(testDate, CategoryJump, 0.5, ""))
	repo.now = old
	repo.Record(event(testDate, CategoryVolatility, 0.5, ""))

	deleted, err := repo.DeleteRecordedBefore(ctx, old().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := repo.List(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, CategoryVolatility, remaining[0].Category)
}

func TestRepository_AsAggregatorSink(t *testing.T) {
	repo := newTestRepository(t)
	agg := NewAggregator(repo, testLogger())

	in := scenarioInput(0.3)
	in.RunID = "replay-1"
	_, err := agg.Scale(context.Background(), in)
	require.NoError(t, err)

	stored, err := repo.List(context.Background(), EventFilter{RunID: "replay-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, CategoryLeverage, stored[0].Category)
	assert.InDelta(t, 0.5, stored[0].Multiplier, 1e-12)
	assert.Equal(t, 0.3, stored[0].Limit)
}

func TestRepository_RecordLogsFailures(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	// no schema: inserts fail, Record must not panic
	repo := NewRepository(db, testLogger())
	assert.NotPanics(t, func() { repo.Record(sampleEvent()) })

	_, err = repo.Insert(context.Background(), sampleEvent())
	assert.Error(t, err)
}
