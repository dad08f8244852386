// Package grid builds the rectilinear sampling lattices used to rasterise
// contours and sample dose: native axes taken from the dose grid or finer
// axes up-sampled to a requested resolution.
package grid

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"dvhcalc/pkg/geometry"
)

// ErrShortAxis is returned for axes that cannot define a spacing.
var ErrShortAxis = errors.New("grid: axis needs at least two samples")

// Lattice2D is an axial sampling grid. Rows follow Y and columns follow X.
type Lattice2D struct {
	X []float64
	Y []float64
}

// NewLattice2D wraps a pair of axes.
func NewLattice2D(x, y []float64) *Lattice2D {
	return &Lattice2D{X: x, Y: y}
}

// Rows returns the number of y samples.
func (l *Lattice2D) Rows() int { return len(l.Y) }

// Cols returns the number of x samples.
func (l *Lattice2D) Cols() int { return len(l.X) }

// Points returns the flattened row-major sample positions.
func (l *Lattice2D) Points() []geometry.Point2D {
	return Build2DPoints(l.X, l.Y)
}

// Spacing returns the absolute x and y steps; 0 for single-sample axes.
func (l *Lattice2D) Spacing() (dx, dy float64) {
	return step(l.X), step(l.Y)
}

// Equal reports whether both lattices share identical axes.
func (l *Lattice2D) Equal(o *Lattice2D) bool {
	if l == nil || o == nil {
		return l == o
	}
	return floats.Equal(l.X, o.X) && floats.Equal(l.Y, o.Y)
}

// Lattice3D is an up-sampled 3D grid with its realised spacing.
type Lattice3D struct {
	X, Y, Z []float64

	// Delta holds the realised [dx, dy, dz] steps in mm.
	Delta [3]float64

	points []geometry.Point2D
}

// Plane returns the axial lattice of the grid.
func (l *Lattice3D) Plane() *Lattice2D {
	return &Lattice2D{X: l.X, Y: l.Y}
}

// Points returns the flattened (x, y) mesh used for rasterisation.
func (l *Lattice3D) Points() []geometry.Point2D {
	return l.points
}

// VoxelVolume returns dx·dy·dz in mm³.
func (l *Lattice3D) VoxelVolume() float64 {
	return l.Delta[0] * l.Delta[1] * l.Delta[2]
}

// AxisUpsample resamples axis at roughly delta mm while keeping its end
// points. It returns the new axis and the realised step.
func AxisUpsample(delta float64, axis []float64) ([]float64, float64, error) {
	if delta <= 0 || math.IsNaN(delta) {
		return nil, 0, fmt.Errorf("grid: invalid resolution %v", delta)
	}
	n := len(axis)
	if n < 2 {
		return nil, 0, ErrShortAxis
	}

	first, last := axis[0], axis[n-1]
	extent := math.Abs(last - first)
	count := int(math.Round(float64(n) * (delta + extent) / (delta * float64(n))))
	if count < 2 {
		count = 2
	}

	out := floats.Span(make([]float64, count), first, last)
	return out, extent / float64(count-1), nil
}

// Build3D up-samples each axis of a dose grid to the requested resolution
// (x, y, z order) and prepares the axial rasterisation mesh.
func Build3D(axes [3][]float64, delta [3]float64) (*Lattice3D, error) {
	var (
		lattice Lattice3D
		out     [3][]float64
	)
	for i, name := range []string{"x", "y", "z"} {
		a, d, err := AxisUpsample(delta[i], axes[i])
		if err != nil {
			return nil, fmt.Errorf("grid: %s axis: %w", name, err)
		}
		out[i] = a
		lattice.Delta[i] = d
	}

	lattice.X, lattice.Y, lattice.Z = out[0], out[1], out[2]
	lattice.points = Build2DPoints(lattice.X, lattice.Y)
	return &lattice, nil
}

// Build2DPoints returns the outer product of the axes as row-major points:
// the i-th row holds every x at y[i].
func Build2DPoints(x, y []float64) []geometry.Point2D {
	pts := make([]geometry.Point2D, 0, len(x)*len(y))
	for _, yv := range y {
		for _, xv := range x {
			pts = append(pts, geometry.Point2D{X: xv, Y: yv})
		}
	}
	return pts
}

// step returns the absolute spacing of the first interval of an axis.
func step(axis []float64) float64 {
	if len(axis) < 2 {
		return 0
	}
	return math.Abs(axis[1] - axis[0])
}
