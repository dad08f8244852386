package dose

import (
	"math"
	"sort"

	"dvhcalc/pkg/geometry"
	"dvhcalc/pkg/grid"
)

// Plane is an axial dose slice sampled on a 2D lattice, row-major with rows
// along y.
type Plane struct {
	Z          float64
	Rows, Cols int
	Values     []float64
}

// At returns the dose at (row, col).
func (p *Plane) At(row, col int) float64 {
	return p.Values[row*p.Cols+col]
}

// bracket is the position of a coordinate between two lattice samples.
type bracket struct {
	lo, hi int
	frac   float64
}

// locate finds the lattice interval holding v. The axis may be ascending or
// descending; values equal to either end point are inside.
func locate(axis []float64, v float64) (bracket, bool) {
	n := len(axis)
	lo, hi := axis[0], axis[n-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	if math.IsNaN(v) || v < lo || v > hi {
		return bracket{}, false
	}
	if n == 1 {
		return bracket{}, true
	}

	var idx int
	if axis[n-1] > axis[0] {
		idx = sort.Search(n, func(i int) bool { return axis[i] > v })
	} else {
		idx = sort.Search(n, func(i int) bool { return axis[i] < v })
	}
	i := idx - 1
	if i < 0 {
		i = 0
	}
	if i > n-2 {
		i = n - 2
	}
	return bracket{lo: i, hi: i + 1, frac: (v - axis[i]) / (axis[i+1] - axis[i])}, true
}

// lerp keeps the end points exact so that on-lattice queries return stored
// values unchanged.
func lerp(a, b, t float64) float64 {
	switch t {
	case 0:
		return a
	case 1:
		return b
	}
	return a + t*(b-a)
}

// InterpolateAt returns the trilinearly interpolated dose at each point. A
// point outside the lattice on any axis fails the whole call with an
// *OutOfGridBoundsError.
func (f *Field) InterpolateAt(points []geometry.Point3D) ([]float64, error) {
	out := make([]float64, len(points))
	for n, p := range points {
		bx, ok := locate(f.X, p.X)
		if !ok {
			return nil, outOfBounds("x", p.X, f.X)
		}
		by, ok := locate(f.Y, p.Y)
		if !ok {
			return nil, outOfBounds("y", p.Y, f.Y)
		}
		bz, ok := locate(f.Z, p.Z)
		if !ok {
			return nil, outOfBounds("z", p.Z, f.Z)
		}
		out[n] = f.trilinear(bx, by, bz)
	}
	return out, nil
}

func (f *Field) trilinear(bx, by, bz bracket) float64 {
	at := func(i, j, k int) float64 { return f.values[f.index(i, j, k)] }

	c00 := lerp(at(bx.lo, by.lo, bz.lo), at(bx.hi, by.lo, bz.lo), bx.frac)
	c10 := lerp(at(bx.lo, by.hi, bz.lo), at(bx.hi, by.hi, bz.lo), bx.frac)
	c01 := lerp(at(bx.lo, by.lo, bz.hi), at(bx.hi, by.lo, bz.hi), bx.frac)
	c11 := lerp(at(bx.lo, by.hi, bz.hi), at(bx.hi, by.hi, bz.hi), bx.frac)

	c0 := lerp(c00, c10, by.frac)
	c1 := lerp(c01, c11, by.frac)
	return lerp(c0, c1, bz.frac)
}

func outOfBounds(axis string, v float64, values []float64) error {
	lo, hi := values[0], values[len(values)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return &OutOfGridBoundsError{Axis: axis, Value: v, Min: lo, Max: hi}
}

// nearestSlice returns the index of the native slice closest to z and its
// distance.
func (f *Field) nearestSlice(z float64) (int, float64) {
	best, dist := 0, math.Inf(1)
	for k, zk := range f.Z {
		if d := math.Abs(zk - z); d < dist {
			best, dist = k, d
		}
	}
	return best, dist
}

// PlaneAt returns the dose slice at z on lut, or on the native lattice when
// lut is nil.
//
// A native slice closer than SliceTolerance is used as is. Otherwise the two
// bracketing slices are blended linearly. Slices outside the dose grid's z
// range yield ErrNoDoseCoverage. Lattices other than the native one are
// sampled by trilinear interpolation.
func (f *Field) PlaneAt(z float64, lut *grid.Lattice2D) (*Plane, error) {
	native := lut == nil || lut.Equal(f.Lattice())

	k, dist := f.nearestSlice(z)
	switch {
	case dist < f.SliceTolerance:
		if native {
			return f.slice(k), nil
		}
		z = f.Z[k]
	case !inRange(f.Z, z):
		return nil, ErrNoDoseCoverage
	}

	if !native {
		return f.sample(z, lut)
	}

	bz, _ := locate(f.Z, z)
	lower, upper := f.slice(bz.lo), f.slice(bz.hi)
	plane := &Plane{Z: z, Rows: lower.Rows, Cols: lower.Cols, Values: make([]float64, len(lower.Values))}
	for i := range plane.Values {
		plane.Values[i] = lerp(lower.Values[i], upper.Values[i], bz.frac)
	}
	return plane, nil
}

// slice returns native slice k without copying the dose values.
func (f *Field) slice(k int) *Plane {
	n := len(f.X) * len(f.Y)
	return &Plane{
		Z:      f.Z[k],
		Rows:   len(f.Y),
		Cols:   len(f.X),
		Values: f.values[k*n : (k+1)*n],
	}
}

// sample interpolates the field at every point of lut on plane z.
func (f *Field) sample(z float64, lut *grid.Lattice2D) (*Plane, error) {
	pts := make([]geometry.Point3D, 0, lut.Rows()*lut.Cols())
	for _, p := range lut.Points() {
		pts = append(pts, geometry.Point3D{X: p.X, Y: p.Y, Z: z})
	}
	values, err := f.InterpolateAt(pts)
	if err != nil {
		return nil, err
	}
	return &Plane{Z: z, Rows: lut.Rows(), Cols: lut.Cols(), Values: values}, nil
}

func inRange(axis []float64, v float64) bool {
	lo, hi := axis[0], axis[len(axis)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}
