package risk

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EventFilter narrows a repository query. Zero values mean "no constraint".
type EventFilter struct {
	Category       Category
	RunID          string
	From           time.Time // inclusive, on the rebalancing date
	To             time.Time // exclusive, on the rebalancing date
	RecordedBefore time.Time // exclusive, on the storage time
	Limit          int
}

// Repository persists breach events in the risk_events table.
// It implements EventSink, so it can be handed directly to an Aggregator.
//
// Dates are stored as Unix timestamps (seconds, UTC).
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a new risk event repository.
//
// Parameters:
//   - db: Database connection holding the risk_events table
//   - log: Structured logger
//
// Returns:
//   - *Repository: Initialized repository instance
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "risk_events").Logger(),
	}
}

// Record implements EventSink. Storage failures are logged, not returned,
// so a broken database never blocks position scaling.
func (r *Repository) Record(e Event) {
	if _, err := r.Insert(context.Background(), e); err != nil {
		r.log.Error().
			Err(err).
			Str("category", string(e.Category)).
			Time("date", e.Date).
			Msg("Failed to persist risk event")
	}
}

// Insert stores a single event.
//
// Returns:
//   - int64: ID of the inserted row
//   - error: Error if the insert fails
func (r *Repository) Insert(ctx context.Context, e Event) (int64, error) {
	query := `
		INSERT INTO risk_events (date, category, prior_value, multiplier, limit_value, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var prior sql.NullFloat64
	if e.PriorValue != nil {
		prior = sql.NullFloat64{Float64: *e.PriorValue, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		e.Date.Unix(),
		string(e.Category),
		prior,
		e.Multiplier,
		e.Limit,
		e.RunID,
		r.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert risk event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// List returns events matching filter ordered by date, then insertion order.
func (r *Repository) List(ctx context.Context, filter EventFilter) ([]Event, error) {
	where, args := filter.clauses()
	query := `
		SELECT id, date, category, prior_value, multiplier, limit_value, run_id, recorded_at
		FROM risk_events` + where + `
		ORDER BY date ASC, id ASC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			e          Event
			date       int64
			category   string
			prior      sql.NullFloat64
			recordedAt int64
		)
		if err := rows.Scan(&e.ID, &date, &category, &prior, &e.Multiplier, &e.Limit, &e.RunID, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk event: %w", err)
		}
		e.Date = time.Unix(date, 0).UTC()
		e.Category = Category(category)
		if prior.Valid {
			v := prior.Float64
			e.PriorValue = &v
		}
		recorded := time.Unix(recordedAt, 0).UTC()
		e.RecordedAt = &recorded
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk events: %w", err)
	}
	return out, nil
}

// CountByCategory returns the number of breaches per category matching filter.
// Limit is ignored.
func (r *Repository) CountByCategory(ctx context.Context, filter EventFilter) (map[Category]int, error) {
	where, args := filter.clauses()
	query := `SELECT category, COUNT(*) FROM risk_events` + where + ` GROUP BY category`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count risk events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Category]int)
	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan risk event count: %w", err)
		}
		counts[Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk event counts: %w", err)
	}
	return counts, nil
}

// DeleteRecordedBefore removes events stored before cutoff.
//
// Returns:
//   - int64: Number of deleted rows
//   - error: Error if the delete fails
func (r *Repository) DeleteRecordedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM risk_events WHERE recorded_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete risk events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		r.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Deleted expired risk events")
	}
	return deleted, nil
}

func (f EventFilter) clauses() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, f.RunID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		conds = append(conds, "date < ?")
		args = append(args, f.To.Unix())
	}
	if !f.RecordedBefore.IsZero() {
		conds = append(conds, "recorded_at < ?")
		args = append(args, f.RecordedBefore.Unix())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND "), args
}
