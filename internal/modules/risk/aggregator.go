package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/riskguard/pkg/formulas"
)

// Observer receives evaluation telemetry. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveEvaluation(binding string, multiplier float64, elapsed time.Duration)
	ObserveBreach(category string, multiplier float64)
}

// Aggregator runs every configured check for a date, scales the positions by
// the binding multiplier and reports each breach to its sink.
type Aggregator struct {
	checks         []Check
	sink           EventSink
	observer       Observer
	periodsPerYear float64
	parallel       bool
	log            zerolog.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithParallelChecks evaluates checks concurrently.
func WithParallelChecks(enabled bool) Option {
	return func(a *Aggregator) { a.parallel = enabled }
}

// WithPeriodsPerYear sets the number of covariance periods per year used to
// annualize the covariance diagonal.
func WithPeriodsPerYear(periods float64) Option {
	return func(a *Aggregator) {
		if periods > 0 {
			a.periodsPerYear = periods
		}
	}
}

// WithChecks replaces the default checks.
func WithChecks(checks ...Check) Option {
	return func(a *Aggregator) { a.checks = checks }
}

// WithObserver attaches an evaluation observer, typically a metrics registry.
func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.observer = o }
}

// NewAggregator creates an aggregator that reports breaches to sink.
// A nil sink discards events.
func NewAggregator(sink EventSink, log zerolog.Logger, opts ...Option) *Aggregator {
	if sink == nil {
		sink = NopSink{}
	}
	a := &Aggregator{
		checks:         DefaultChecks(),
		sink:           sink,
		periodsPerYear: formulas.TradingDaysPerYear,
		log:            log.With().Str("component", "risk_aggregator").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Categories returns the configured checks' categories in evaluation order.
func (a *Aggregator) Categories() []Category {
	categories := make([]Category, len(a.checks))
	for i, c := range a.checks {
		categories[i] = c.Category()
	}
	return categories
}

// Scale validates in, evaluates every check and returns the positions scaled by
// the smallest multiplier. Every breach is recorded on the sink before Scale returns.
// The input slices are never modified.
func (a *Aggregator) Scale(ctx context.Context, in Input) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	start := time.Now()
	ev := newEvaluation(in, a.periodsPerYear)

	measures, err := a.measure(ctx, ev)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Date:       in.Date,
		Multiplier: 1,
		Checks:     make([]CheckResult, len(a.checks)),
		Events:     []Event{},
	}
	for i, check := range a.checks {
		measure := measures[i]
		if math.IsNaN(measure) || math.IsInf(measure, 0) {
			return nil, fmt.Errorf("%s measure is %v: %w", check.Category(), measure, ErrNonFiniteInput)
		}
		limit := check.Limit(in.Limits)
		cr := CheckResult{
			Category:   check.Category(),
			Measure:    measure,
			Limit:      limit,
			Multiplier: multiplier(limit, measure),
		}
		result.Checks[i] = cr

		if cr.Multiplier < result.Multiplier {
			result.Multiplier = cr.Multiplier
			result.Binding = cr.Category
		}
	}

	for _, cr := range result.Checks {
		if !cr.Breached() {
			continue
		}
		prior := cr.Measure
		event := Event{
			Date:       in.Date,
			Category:   cr.Category,
			PriorValue: &prior,
			Multiplier: cr.Multiplier,
			Limit:      cr.Limit,
			RunID:      in.RunID,
		}
		a.sink.Record(event)
		result.Events = append(result.Events, event)
		if a.observer != nil {
			a.observer.ObserveBreach(string(cr.Category), cr.Multiplier)
		}
	}

	result.Positions = make([]float64, len(in.Positions))
	floats.ScaleTo(result.Positions, result.Multiplier, in.Positions)

	elapsed := time.Since(start)
	if a.observer != nil {
		a.observer.ObserveEvaluation(string(result.Binding), result.Multiplier, elapsed)
	}

	a.log.Debug().
		Time("date", in.Date).
		Int("instruments", len(in.Positions)).
		Float64("multiplier", result.Multiplier).
		Str("binding", string(result.Binding)).
		Int("breaches", len(result.Events)).
		Dur("elapsed", elapsed).
		Msg("Risk evaluation complete")

	return result, nil
}

func (a *Aggregator) measure(ctx context.Context, ev *Evaluation) ([]float64, error) {
	measures := make([]float64, len(a.checks))
	if !a.parallel {
		for i, check := range a.checks {
			measures[i] = check.Measure(ev)
		}
		return measures, nil
	}

	g, _ := errgroup.WithContext(ctx)
	for i, check := range a.checks {
		g.Go(func() error {
			measures[i] = check.Measure(ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to evaluate risk checks: %w", err)
	}
	return measures, nil
}

// ComputeRiskScaledPositions scales positions so that all four risk ceilings hold
// and records each breach on sink. sink may be nil.
func ComputeRiskScaledPositions(
	positions []float64,
	weighted []float64,
	covariance [][]float64,
	jumpCovariance [][]float64,
	maxLeverage float64,
	maxCorrelationRisk float64,
	maxPortfolioVolatility float64,
	maxJumpRisk float64,
	date time.Time,
	sink EventSink,
) ([]float64, error) {
	result, err := NewAggregator(sink, zerolog.Nop()).Scale(context.Background(), Input{
		Date:           date,
		Positions:      positions,
		Weighted:       weighted,
		Covariance:     covariance,
		JumpCovariance: jumpCovariance,
		Limits: Limits{
			MaxLeverage:            maxLeverage,
			MaxCorrelationRisk:     maxCorrelationRisk,
			MaxPortfolioVolatility: maxPortfolioVolatility,
			MaxJumpRisk:            maxJumpRisk,
		},
	})
	if err != nil {
		return nil, err
	}
	return result.Positions, nil
}
