// Package dose holds the 3D dose distribution of a plan and samples it at
// arbitrary positions and axial slices.
//
// Dose is stored in cGy on a rectilinear lattice whose axes may run in either
// direction, as produced by the patient orientation of an RT Dose object.
package dose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"dvhcalc/pkg/geometry"
	"dvhcalc/pkg/grid"
)

// DefaultSliceTolerance is the distance (mm) within which a requested slice
// is served from the nearest native dose slice without interpolation.
const DefaultSliceTolerance = 0.5

// Field is a 3D dose grid.
type Field struct {
	// X, Y and Z are the lattice axes in patient mm.
	X, Y, Z []float64

	// SliceTolerance is the native-slice snapping distance used by PlaneAt.
	SliceTolerance float64

	// values is z-major: index (k*ny + j)*nx + i.
	values []float64
}

// New builds a field from dose values in cGy laid out z-major (slice, row,
// column) and the matching axes.
func New(values, x, y, z []float64) (*Field, error) {
	for _, a := range []struct {
		name string
		axis []float64
	}{{"x", x}, {"y", y}, {"z", z}} {
		if err := checkAxis(a.axis); err != nil {
			return nil, fmt.Errorf("dose: %s axis: %w", a.name, err)
		}
	}
	if want := len(x) * len(y) * len(z); len(values) != want {
		return nil, fmt.Errorf("dose: %d values do not match a %dx%dx%d grid", len(values), len(z), len(y), len(x))
	}

	return &Field{
		X:              x,
		Y:              y,
		Z:              z,
		SliceTolerance: DefaultSliceTolerance,
		values:         values,
	}, nil
}

// checkAxis enforces a non-empty, strictly monotonic axis.
func checkAxis(axis []float64) error {
	if len(axis) == 0 {
		return errors.New("empty axis")
	}
	if len(axis) == 1 {
		return nil
	}
	ascending := axis[1] > axis[0]
	for i := 1; i < len(axis); i++ {
		d := axis[i] - axis[i-1]
		if (ascending && !(d > 0)) || (!ascending && !(d < 0)) {
			return fmt.Errorf("not strictly monotonic at index %d", i)
		}
	}
	return nil
}

// Axes returns the x, y and z axes.
func (f *Field) Axes() [3][]float64 {
	return [3][]float64{f.X, f.Y, f.Z}
}

// Lattice returns the native axial sampling lattice.
func (f *Field) Lattice() *grid.Lattice2D {
	return grid.NewLattice2D(f.X, f.Y)
}

// Size returns the number of samples along x, y and z.
func (f *Field) Size() [3]int {
	return [3]int{len(f.X), len(f.Y), len(f.Z)}
}

// Resolution returns the absolute x, y and z steps in mm.
func (f *Field) Resolution() [3]float64 {
	var res [3]float64
	for i, axis := range f.Axes() {
		if len(axis) > 1 {
			res[i] = math.Abs(axis[1] - axis[0])
		}
	}
	return res
}

// Values returns the raw z-major dose array. Callers must not modify it.
func (f *Field) Values() []float64 {
	return f.values
}

// Value returns the dose stored at column i, row j, slice k.
func (f *Field) Value(i, j, k int) float64 {
	return f.values[f.index(i, j, k)]
}

func (f *Field) index(i, j, k int) int {
	return (k*len(f.Y)+j)*len(f.X) + i
}

// MaxDose returns the largest stored dose.
func (f *Field) MaxDose() float64 {
	return floats.Max(f.values)
}

// MaxLocation returns the lattice position of the largest stored dose.
func (f *Field) MaxLocation() geometry.Point3D {
	idx := floats.MaxIdx(f.values)
	nx, ny := len(f.X), len(f.Y)
	i := idx % nx
	j := (idx / nx) % ny
	k := idx / (nx * ny)
	return geometry.Point3D{X: f.X[i], Y: f.Y[j], Z: f.Z[k]}
}
