package backtest

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/riskguard/internal/modules/risk"
)

// Replayer evaluates a series of snapshots through one aggregator.
type Replayer struct {
	aggregator *risk.Aggregator
	workers    int
	newRunID   func() string
	log        zerolog.Logger
}

// ReplayOption configures a Replayer
type ReplayOption func(*Replayer)

// WithWorkers bounds the number of dates evaluated at once. Values below 1 use GOMAXPROCS.
func WithWorkers(n int) ReplayOption {
	return func(r *Replayer) {
		if n > 0 {
			r.workers = n
		}
	}
}

// NewReplayer creates a replayer backed by aggregator
func NewReplayer(aggregator *risk.Aggregator, log zerolog.Logger, opts ...ReplayOption) *Replayer {
	r := &Replayer{
		aggregator: aggregator,
		workers:    runtime.GOMAXPROCS(0),
		newRunID:   uuid.NewString,
		log:        log.With().Str("component", "replayer").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates every snapshot against limits. Dates are evaluated concurrently
// but the report keeps the input order. The first failing snapshot cancels the run.
func (r *Replayer) Run(ctx context.Context, snapshots []Snapshot, limits risk.Limits) (*Report, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	runID := r.newRunID()
	started := time.Now()
	log := r.log.With().Str("run_id", runID).Logger()
	log.Info().
		Int("snapshots", len(snapshots)).
		Int("workers", r.workers).
		Msg("Starting replay")

	results := make([]DateResult, len(snapshots))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, snapshot := range snapshots {
		g.Go(func() error {
			res, err := r.aggregator.Scale(gctx, snapshot.Input(limits, runID))
			if err != nil {
				return fmt.Errorf("snapshot %d (%s): %w", i, snapshot.Date.Format("2006-01-02"), err)
			}
			results[i] = DateResult{
				Date:        snapshot.Date,
				Instruments: snapshot.Instruments,
				Positions:   res.Positions,
				Multiplier:  res.Multiplier,
				Binding:     res.Binding,
				Checks:      res.Checks,
				Breaches:    len(res.Events),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Replay failed")
		return nil, err
	}

	report := newReport(runID, limits, started, time.Now(), results)
	log.Info().
		Int("dates", len(report.Dates)).
		Int("scaled_dates", report.ScaledDates).
		Float64("min_multiplier", report.MinMultiplier).
		Dur("duration", report.Finished.Sub(report.Started)).
		Msg("Replay complete")

	return report, nil
}
