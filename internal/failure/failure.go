// Package failure defines the error taxonomy shared by the detection,
// matching, estimation and warping packages. Callers test for a category with
// errors.Is; the concrete errors carry context added with errors.Wrapf.
package failure

import "github.com/pkg/errors"

var (
	// ErrInvalidInput reports malformed dimensions, buffer size mismatches or
	// out-of-range parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType reports descriptor sets whose type or length differ.
	ErrUnsupportedType = errors.New("unsupported descriptor type")

	// ErrInsufficientData reports fewer points or descriptors than an
	// operation needs.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNumericalFailure reports a degenerate or non-invertible matrix or a
	// failed linear solve.
	ErrNumericalFailure = errors.New("numerical failure")
)
