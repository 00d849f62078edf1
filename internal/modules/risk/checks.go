package risk

import (
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/riskguard/pkg/formulas"
)

// Evaluation holds the inputs shared by every check for one date.
// It is read-only once built, so checks may run concurrently against it.
type Evaluation struct {
	Weighted       []float64
	Volatilities   []float64  // annualized, from the covariance diagonal
	Covariance     *mat.Dense // nil for an empty book
	JumpCovariance *mat.Dense // nil for an empty book
}

// newEvaluation assumes in has already been validated.
func newEvaluation(in Input, periodsPerYear float64) *Evaluation {
	n := len(in.Weighted)
	ev := &Evaluation{
		Weighted:     in.Weighted,
		Volatilities: []float64{},
	}
	if n == 0 {
		return ev
	}

	variances := make([]float64, n)
	for i := range variances {
		variances[i] = in.Covariance[i][i]
	}
	ev.Volatilities = formulas.AnnualizeVariance(variances, periodsPerYear)
	ev.Covariance = denseFromRows(in.Covariance)
	ev.JumpCovariance = denseFromRows(in.JumpCovariance)
	return ev
}

func denseFromRows(rows [][]float64) *mat.Dense {
	n := len(rows)
	data := make([]float64, 0, n*n)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(n, n, data)
}

// Check is one risk dimension. Measure must be a pure function of the evaluation.
type Check interface {
	Category() Category
	Limit(Limits) float64
	Measure(*Evaluation) float64
}

// DefaultChecks returns the leverage, correlation, volatility and jump checks.
func DefaultChecks() []Check {
	return []Check{
		LeverageCheck{},
		CorrelationCheck{},
		VolatilityCheck{},
		JumpCheck{},
	}
}

// LeverageCheck bounds gross exposure.
type LeverageCheck struct{}

func (LeverageCheck) Category() Category { return CategoryLeverage }
func (LeverageCheck) Limit(l Limits) float64 { return l.MaxLeverage }
func (LeverageCheck) Measure(ev *Evaluation) float64 { return Leverage(ev.Weighted) }

// CorrelationCheck bounds volatility-weighted gross exposure.
type CorrelationCheck struct{}

func (CorrelationCheck) Category() Category { return CategoryCorrelation }
func (CorrelationCheck) Limit(l Limits) float64 { return l.MaxCorrelationRisk }
func (CorrelationCheck) Measure(ev *Evaluation) float64 {
	return CorrelationRisk(ev.Weighted, ev.Volatilities)
}

// VolatilityCheck bounds sqrt(wᵀCw) on the routine covariance matrix.
type VolatilityCheck struct{}

func (VolatilityCheck) Category() Category { return CategoryVolatility }
func (VolatilityCheck) Limit(l Limits) float64 { return l.MaxPortfolioVolatility }
func (VolatilityCheck) Measure(ev *Evaluation) float64 {
	if ev.Covariance == nil {
		return 0
	}
	return QuadraticRisk(ev.Weighted, ev.Covariance)
}

// JumpCheck bounds sqrt(wᵀJw) on the jump covariance matrix.
type JumpCheck struct{}

func (JumpCheck) Category() Category { return CategoryJump }
func (JumpCheck) Limit(l Limits) float64 { return l.MaxJumpRisk }
func (JumpCheck) Measure(ev *Evaluation) float64 {
	if ev.JumpCovariance == nil {
		return 0
	}
	return QuadraticRisk(ev.Weighted, ev.JumpCovariance)
}
