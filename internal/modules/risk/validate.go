package risk

import (
	"fmt"
	"math"
)

func validateInput(in Input) error {
	if err := in.Limits.Validate(); err != nil {
		return err
	}

	n := len(in.Weighted)
	if len(in.Positions) != n {
		return fmt.Errorf("positions has %d entries, weighted positions has %d: %w", len(in.Positions), n, ErrDimensionMismatch)
	}
	if err := validateSquare("covariance matrix", in.Covariance, n); err != nil {
		return err
	}
	if err := validateSquare("jump covariance matrix", in.JumpCovariance, n); err != nil {
		return err
	}

	if err := validateFinite("positions", in.Positions); err != nil {
		return err
	}
	if err := validateFinite("weighted positions", in.Weighted); err != nil {
		return err
	}
	for i, row := range in.Covariance {
		if err := validateFinite(fmt.Sprintf("covariance matrix row %d", i), row); err != nil {
			return err
		}
	}
	for i, row := range in.JumpCovariance {
		if err := validateFinite(fmt.Sprintf("jump covariance matrix row %d", i), row); err != nil {
			return err
		}
	}
	return nil
}

func validateSquare(name string, m [][]float64, n int) error {
	if len(m) != n {
		return fmt.Errorf("%s has %d rows, expected %d: %w", name, len(m), n, ErrDimensionMismatch)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%s row %d has %d columns, expected %d: %w", name, i, len(row), n, ErrDimensionMismatch)
		}
	}
	return nil
}

func validateFinite(name string, values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] is %v: %w", name, i, v, ErrNonFiniteInput)
		}
	}
	return nil
}
