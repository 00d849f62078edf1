// Package reliability provides maintenance jobs that keep the risk event store bounded.
package reliability

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/modules/risk"
)

// EventStore is the part of risk.Repository the retention job needs
type EventStore interface {
	List(ctx context.Context, filter risk.EventFilter) ([]risk.Event, error)
	DeleteRecordedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Checkpointer truncates the database write-ahead log
type Checkpointer interface {
	WALCheckpoint(mode string) error
}

// RetentionJob exports risk events older than the retention window to the
// archiver, deletes them, and checkpoints the WAL.
type RetentionJob struct {
	store     EventStore
	archiver  Archiver // nil skips archiving
	db        Checkpointer
	retention time.Duration
	timeout   time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewRetentionJob creates a new retention job. retentionDays == 0 keeps events forever.
func NewRetentionJob(
	store EventStore,
	archiver Archiver,
	db Checkpointer,
	retentionDays int,
	log zerolog.Logger,
) *RetentionJob {
	return &RetentionJob{
		store:     store,
		archiver:  archiver,
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		timeout:   10 * time.Minute,
		now:       time.Now,
		log:       log.With().Str("job", "risk_event_retention").Logger(),
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "risk_event_retention"
}

// Run executes the retention job
func (j *RetentionJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if j.retention > 0 {
		if err := j.expire(ctx); err != nil {
			return err
		}
	}

	if j.db != nil {
		if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, the next run retries
			j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}
	return nil
}

func (j *RetentionJob) expire(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention).UTC()

	if j.archiver != nil {
		expired, err := j.store.List(ctx, risk.EventFilter{RecordedBefore: cutoff})
		if err != nil {
			return fmt.Errorf("failed to list expired risk events: %w", err)
		}
		if len(expired) == 0 {
			j.log.Debug().Time("cutoff", cutoff).Msg("No expired risk events")
			return nil
		}

		body, err := encodeArchive(expired)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("risk-events-%s.jsonl.gz", cutoff.Format("20060102-150405"))
		if err := j.archiver.Archive(ctx, key, bytes.NewReader(body)); err != nil {
			// Keep the events so the next run can retry the export
			return fmt.Errorf("failed to archive risk events: %w", err)
		}
		j.log.Info().
			Str("key", key).
			Int("events", len(expired)).
			Msg("Archived expired risk events")
	}

	deleted, err := j.store.DeleteRecordedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete expired risk events: %w", err)
	}

	j.log.Info().
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Risk event retention complete")
	return nil
}

// encodeArchive writes one JSON document per line, gzip-compressed
func encodeArchive(events []risk.Event) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return nil, fmt.Errorf("failed to encode risk event %d: %w", e.ID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress archive: %w", err)
	}
	return buf.Bytes(), nil
}
