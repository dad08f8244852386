package dose

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfGridBounds matches every *OutOfGridBoundsError.
	ErrOutOfGridBounds = errors.New("dose: query outside dose grid")

	// ErrNoDoseCoverage is returned by PlaneAt when the requested slice lies
	// outside the dose grid's z range.
	ErrNoDoseCoverage = errors.New("dose: no dose coverage at slice")
)

// OutOfGridBoundsError describes the first coordinate of a query that fell
// outside the lattice.
type OutOfGridBoundsError struct {
	Axis     string
	Value    float64
	Min, Max float64
}

func (e *OutOfGridBoundsError) Error() string {
	return fmt.Sprintf("dose: %s=%.4f outside dose grid [%.4f, %.4f]", e.Axis, e.Value, e.Min, e.Max)
}

func (e *OutOfGridBoundsError) Unwrap() error {
	return ErrOutOfGridBounds
}
