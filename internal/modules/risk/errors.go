package risk

import "errors"

var (
	// ErrDimensionMismatch is returned when the position vectors and covariance
	// matrices do not describe the same set of instruments.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidLimit is returned when a risk ceiling is not a finite positive number.
	ErrInvalidLimit = errors.New("invalid risk limit")

	// ErrNonFiniteInput is returned when a vector or matrix entry is NaN or infinite.
	ErrNonFiniteInput = errors.New("non-finite input")
)

// IsInputError reports whether err was caused by malformed caller input
// rather than an internal failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidLimit) ||
		errors.Is(err, ErrNonFiniteInput)
}
