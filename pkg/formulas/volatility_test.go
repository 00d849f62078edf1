package formulas

import (
	"math"
	"testing"
)

func TestAnnualizeVariance(t *testing.T) {
	tests := []struct {
		name           string
		variances      []float64
		periodsPerYear float64
		expected       []float64
	}{
		{
			name:           "empty input",
			variances:      []float64{},
			periodsPerYear: 252,
			expected:       []float64{},
		},
		{
			name:           "daily variances",
			variances:      []float64{0.0001, 0.0004},
			periodsPerYear: 252,
			expected:       []float64{math.Sqrt(0.0252), math.Sqrt(0.1008)},
		},
		{
			name:           "weekly variances",
			variances:      []float64{0.0025},
			periodsPerYear: 52,
			expected:       []float64{math.Sqrt(0.13)},
		},
		{
			name:           "zero variance stays zero",
			variances:      []float64{0, 0.0001},
			periodsPerYear: 252,
			expected:       []float64{0, math.Sqrt(0.0252)},
		},
		{
			name:           "negative noise clamped to zero",
			variances:      []float64{-1e-12, 0.0001},
			periodsPerYear: 252,
			expected:       []float64{0, math.Sqrt(0.0252)},
		},
		{
			name:           "non-positive periods fall back to trading days",
			variances:      []float64{0.0001},
			periodsPerYear: 0,
			expected:       []float64{math.Sqrt(0.0252)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnnualizeVariance(tt.variances, tt.periodsPerYear)
			if len(got) != len(tt.expected) {
				t.Fatalf("AnnualizeVariance() returned %d values, want %d", len(got), len(tt.expected))
			}
			for i := range got {
				if math.Abs(got[i]-tt.expected[i]) > 1e-12 {
					t.Errorf("AnnualizeVariance()[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
				if math.IsNaN(got[i]) {
					t.Errorf("AnnualizeVariance()[%d] is NaN", i)
				}
			}
		})
	}
}

func TestAnnualizeVariance_DoesNotMutateInput(t *testing.T) {
	variances := []float64{0.0001, -0.5}
	AnnualizeVariance(variances, 252)

	if variances[0] != 0.0001 || variances[1] != -0.5 {
		t.Errorf("input was modified: %v", variances)
	}
}

func TestDailyVarianceToAnnualizedVolatility(t *testing.T) {
	// 1% daily standard deviation -> ~15.87% annualized
	got := DailyVarianceToAnnualizedVolatility([]float64{0.0001})
	want := 0.01 * math.Sqrt(252)

	if math.Abs(got[0]-want) > 1e-12 {
		t.Errorf("DailyVarianceToAnnualizedVolatility() = %v, want %v", got[0], want)
	}
}
