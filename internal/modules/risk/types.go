// Package risk scales proposed portfolio positions so that leverage, correlation
// risk, portfolio volatility and jump risk stay within their configured ceilings.
package risk

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Category identifies a risk dimension that can shrink a position vector.
type Category string

const (
	CategoryLeverage    Category = "Leverage"
	CategoryCorrelation Category = "Correlation"
	CategoryVolatility  Category = "Volatility"
	CategoryJump        Category = "Jump"
)

// Categories lists the built-in risk dimensions in evaluation order.
func Categories() []Category {
	return []Category{CategoryLeverage, CategoryCorrelation, CategoryVolatility, CategoryJump}
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(name string) (Category, error) {
	for _, c := range Categories() {
		if strings.EqualFold(name, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown risk category %q", name)
}

// Limits holds the four risk ceilings. All must be strictly positive.
type Limits struct {
	MaxLeverage            float64 `json:"max_leverage" yaml:"max_leverage"`
	MaxCorrelationRisk     float64 `json:"max_correlation_risk" yaml:"max_correlation_risk"`
	MaxPortfolioVolatility float64 `json:"max_portfolio_volatility" yaml:"max_portfolio_volatility"`
	MaxJumpRisk            float64 `json:"max_jump_risk" yaml:"max_jump_risk"`
}

// DefaultLimits returns conservative ceilings for a diversified long/short book.
func DefaultLimits() Limits {
	return Limits{
		MaxLeverage:            2.0,
		MaxCorrelationRisk:     0.65,
		MaxPortfolioVolatility: 0.30,
		MaxJumpRisk:            0.75,
	}
}

// Validate rejects ceilings that are zero, negative, NaN or infinite.
func (l Limits) Validate() error {
	ceilings := []struct {
		name  string
		value float64
	}{
		{"max_leverage", l.MaxLeverage},
		{"max_correlation_risk", l.MaxCorrelationRisk},
		{"max_portfolio_volatility", l.MaxPortfolioVolatility},
		{"max_jump_risk", l.MaxJumpRisk},
	}
	for _, c := range ceilings {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value <= 0 {
			return fmt.Errorf("%s must be a positive finite number, got %v: %w", c.name, c.value, ErrInvalidLimit)
		}
	}
	return nil
}

// Input is everything needed to scale one rebalancing date.
type Input struct {
	Date           time.Time
	Positions      []float64
	Weighted       []float64
	Covariance     [][]float64
	JumpCovariance [][]float64
	Limits         Limits

	// RunID tags emitted events with the replay or request they belong to.
	RunID string
}

// Event records a risk multiplier below 1 on a given date.
type Event struct {
	ID         int64     `json:"id,omitempty"`
	Date       time.Time `json:"date"`
	Category   Category  `json:"category"`
	PriorValue *float64  `json:"prior_value,omitempty"` // measured risk before scaling
	Multiplier float64   `json:"multiplier"`
	Limit      float64   `json:"limit"`
	RunID      string    `json:"run_id,omitempty"`

	// RecordedAt is set once the event has been persisted.
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// EventSink receives breach events. Implementations must be safe for concurrent use.
type EventSink interface {
	Record(Event)
}

// CheckResult is the outcome of a single risk check.
type CheckResult struct {
	Category   Category `json:"category"`
	Measure    float64  `json:"measure"`
	Limit      float64  `json:"limit"`
	Multiplier float64  `json:"multiplier"`
}

// Breached reports whether the check forced the positions down.
func (r CheckResult) Breached() bool {
	return r.Multiplier < 1
}

// Result is the scaled position vector plus the breakdown that produced it.
type Result struct {
	Date       time.Time     `json:"date"`
	Positions  []float64     `json:"positions"`
	Multiplier float64       `json:"multiplier"`
	Binding    Category      `json:"binding,omitempty"`
	Checks     []CheckResult `json:"checks"`
	Events     []Event       `json:"events"`
}

// MultiplierFor returns the multiplier of the given category, or 1 if it was not evaluated.
func (r *Result) MultiplierFor(c Category) float64 {
	for _, check := range r.Checks {
		if check.Category == c {
			return check.Multiplier
		}
	}
	return 1
}
