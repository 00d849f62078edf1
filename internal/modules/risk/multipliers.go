package risk

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ceilingTolerance absorbs rounding when a previously scaled book lands on its ceiling.
const ceilingTolerance = 1e-12

// multiplier maps a risk measure to the factor needed to bring it under the ceiling.
// A zero measure means there is nothing to constrain.
func multiplier(ceiling, measure float64) float64 {
	if measure <= 0 || measure <= ceiling*(1+ceilingTolerance) {
		return 1
	}
	return ceiling / measure
}

// Leverage is the gross exposure of the book: Σ|w_i|.
func Leverage(weighted []float64) float64 {
	return floats.Norm(weighted, 1)
}

// CorrelationRisk is the volatility-weighted gross exposure: Σ|w_i|·σ_i.
// It is a linear upper bound on co-movement risk and ignores the off-diagonal terms.
func CorrelationRisk(weighted, volatilities []float64) float64 {
	if len(weighted) == 0 {
		return 0
	}
	abs := make([]float64, len(weighted))
	for i, w := range weighted {
		abs[i] = math.Abs(w)
	}
	return floats.Dot(abs, volatilities)
}

// QuadraticRisk is sqrt(wᵀ·C·w). Small negative values from floating point
// noise are clamped to zero before the square root.
func QuadraticRisk(weighted []float64, cov mat.Matrix) float64 {
	if len(weighted) == 0 || cov == nil {
		return 0
	}
	w := mat.NewVecDense(len(weighted), weighted)
	variance := mat.Inner(w, cov, w)
	if variance <= 0 {
		return 0
	}
	return math.Sqrt(variance)
}

// LeverageMultiplier scales gross exposure down to maxLeverage.
func LeverageMultiplier(maxLeverage float64, weighted []float64) float64 {
	return multiplier(maxLeverage, Leverage(weighted))
}

// CorrelationRiskMultiplier scales volatility-weighted exposure down to maxCorrelationRisk.
// volatilities must be annualized and aligned with weighted.
func CorrelationRiskMultiplier(maxCorrelationRisk float64, weighted, volatilities []float64) float64 {
	return multiplier(maxCorrelationRisk, CorrelationRisk(weighted, volatilities))
}

// PortfolioVolatilityMultiplier scales the portfolio volatility down to maxVolatility.
// cov must be len(weighted) x len(weighted).
func PortfolioVolatilityMultiplier(maxVolatility float64, weighted []float64, cov mat.Matrix) float64 {
	return multiplier(maxVolatility, QuadraticRisk(weighted, cov))
}

// JumpRiskMultiplier is PortfolioVolatilityMultiplier applied to the jump covariance matrix.
func JumpRiskMultiplier(maxJumpRisk float64, weighted []float64, jumpCov mat.Matrix) float64 {
	return multiplier(maxJumpRisk, QuadraticRisk(weighted, jumpCov))
}
