// Package formulas holds small, pure financial conversions shared by the risk code.
package formulas

import "math"

// TradingDaysPerYear is the number of daily periods in one year.
const TradingDaysPerYear = 252

// AnnualizeVariance converts per-period variances into annualized volatilities.
// Formula: sqrt(variance × periodsPerYear)
//
// Negative variances come from numerical noise in the covariance estimate and are
// clamped to zero. A non-positive periodsPerYear falls back to TradingDaysPerYear.
// The input slice is not modified.
func AnnualizeVariance(variances []float64, periodsPerYear float64) []float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = TradingDaysPerYear
	}

	vols := make([]float64, len(variances))
	for i, v := range variances {
		if v <= 0 {
			continue
		}
		vols[i] = math.Sqrt(v * periodsPerYear)
	}
	return vols
}

// DailyVarianceToAnnualizedVolatility annualizes daily variances using 252 trading days.
func DailyVarianceToAnnualizedVolatility(variances []float64) []float64 {
	return AnnualizeVariance(variances, TradingDaysPerYear)
}
