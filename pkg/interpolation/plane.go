// Package interpolation synthesises structure contours on planes that were
// not delineated, by matching every vertex of one bounding ring with its
// nearest vertex on the other and interpolating linearly in z.
package interpolation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"dvhcalc/pkg/geometry"
)

// zMatchTolerance is the distance (mm) below which a target z reuses an
// existing plane.
const zMatchTolerance = 1e-6

// ErrTooFewPlanes is returned when a structure cannot bracket target planes.
var ErrTooFewPlanes = errors.New("interpolation: need at least two planes")

// ringPoint is a contour vertex in the axial plane.
type ringPoint struct {
	X, Y float64
}

// Compare implements the kdtree.Comparable interface
func (p ringPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(ringPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p ringPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points.
// Both bounding rings sit on parallel planes, so the z separation is the same
// for every pair and does not change which vertex is nearest.
func (p ringPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(ringPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// ringPoints satisfies kdtree.Interface
type ringPoints []ringPoint

func (p ringPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p ringPoints) Len() int                              { return len(p) }
func (p ringPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p ringPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(ringAxis{ringPoints: p, Dim: d}, kdtree.MedianOfRandoms(ringAxis{ringPoints: p, Dim: d}, 100))
}

// ringAxis implements sort.Interface and kdtree.SortSlicer for ringPoints
type ringAxis struct {
	ringPoints
	kdtree.Dim
}

func (p ringAxis) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.ringPoints[i].X < p.ringPoints[j].X
	case 1:
		return p.ringPoints[i].Y < p.ringPoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p ringAxis) Slice(start, end int) kdtree.SortSlicer {
	return ringAxis{ringPoints: p.ringPoints[start:end], Dim: p.Dim}
}

func (p ringAxis) Swap(i, j int) {
	p.ringPoints[i], p.ringPoints[j] = p.ringPoints[j], p.ringPoints[i]
}

// InterpolatePlane builds a ring at zTarget between the rings upper (at
// zUpper) and lower (at zLower).
//
// The ring with more vertices drives: each of its vertices is paired with the
// nearest vertex of the other ring and moved linearly along the pair. When
// lower has more vertices the bounds are swapped together with the rings.
// The result has one vertex per driving vertex.
func InterpolatePlane(zUpper, zLower, zTarget float64, upper, lower []geometry.Point2D) []geometry.Point3D {
	if len(upper) < len(lower) {
		zUpper, zLower = zLower, zUpper
		upper, lower = lower, upper
	}
	if len(lower) == 0 {
		return nil
	}

	// kdtree.New reorders its input.
	pts := make(ringPoints, len(lower))
	for i, p := range lower {
		pts[i] = ringPoint{X: p.X, Y: p.Y}
	}
	tree := kdtree.New(pts, false)

	t := 0.0
	if span := zUpper - zLower; span != 0 {
		t = (zTarget - zLower) / span
	}

	out := make([]geometry.Point3D, len(upper))
	for i, up := range upper {
		nn, _ := tree.Nearest(ringPoint{X: up.X, Y: up.Y})
		lp := nn.(ringPoint)
		out[i] = geometry.Point3D{
			X: lp.X + t*(up.X-lp.X),
			Y: lp.Y + t*(up.Y-lp.Y),
			Z: zTarget,
		}
	}
	return out
}

// Resample returns one plane per target z. Targets matching an existing plane
// reuse it; the others are interpolated ring by ring between the bracketing
// planes (or the two nearest planes for targets beyond the stack).
// planes must be ordered by ascending z.
func Resample(planes []geometry.Plane, zs []float64) ([]geometry.Plane, error) {
	if len(planes) < 2 {
		return nil, ErrTooFewPlanes
	}

	positions := geometry.PlanePositions(planes)
	out := make([]geometry.Plane, 0, len(zs))
	for _, z := range zs {
		if i := matchPlane(positions, z); i >= 0 {
			out = append(out, planes[i])
			continue
		}

		lo := sort.SearchFloat64s(positions, z) - 1
		if lo < 0 {
			lo = 0
		}
		if lo > len(planes)-2 {
			lo = len(planes) - 2
		}
		lower, upper := planes[lo], planes[lo+1]
		if len(lower.Contours) == 0 || len(upper.Contours) == 0 {
			return nil, fmt.Errorf("interpolation: no ring to interpolate between z=%.2f and z=%.2f", lower.Z, upper.Z)
		}

		out = append(out, geometry.Plane{
			Key:      geometry.ZKey(z),
			Z:        z,
			Contours: interpolateRings(upper, lower, z),
		})
	}
	return out, nil
}

// ringPair is an upper and a lower ring interpolated together.
type ringPair struct {
	upper, lower geometry.Contour
}

// interpolateRings builds every ring of the plane at z. Regions pair with
// regions and holes with holes; a class missing on one plane is carried over
// unchanged from the other.
func interpolateRings(upper, lower geometry.Plane, z float64) []geometry.Contour {
	upRegions, upHoles := classify(upper)
	loRegions, loHoles := classify(lower)

	pairs := pairRings(upRegions, loRegions)
	pairs = append(pairs, pairRings(upHoles, loHoles)...)

	out := make([]geometry.Contour, 0, len(pairs))
	for _, p := range pairs {
		ring := InterpolatePlane(upper.Z, lower.Z, z, p.upper.Points, p.lower.Points)
		out = append(out, geometry.ContourFromPoints(ring))
	}
	return out
}

// classify splits the usable rings of a plane into regions and holes of the
// largest ring.
func classify(p geometry.Plane) (regions, holes []geometry.Contour) {
	nesting := geometry.ResolveNesting(p.Contours)
	for i, c := range p.Contours {
		if c.Degenerate() {
			continue
		}
		if nesting.Inside(i) {
			holes = append(holes, c)
		} else {
			regions = append(regions, c)
		}
	}
	return regions, holes
}

// pairRings matches rings by centroid distance, nearest first and one to one.
// Rings left over on the plane with more rings join their nearest ring on
// the other plane.
func pairRings(upper, lower []geometry.Contour) []ringPair {
	switch {
	case len(upper) == 0:
		return carry(lower)
	case len(lower) == 0:
		return carry(upper)
	}

	type candidate struct {
		u, l int
		dist float64
	}
	uc, lc := centroids(upper), centroids(lower)
	cands := make([]candidate, 0, len(upper)*len(lower))
	for i := range upper {
		for j := range lower {
			dx, dy := uc[i].X-lc[j].X, uc[i].Y-lc[j].Y
			cands = append(cands, candidate{u: i, l: j, dist: dx*dx + dy*dy})
		}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].dist < cands[b].dist })

	uDone := make([]bool, len(upper))
	lDone := make([]bool, len(lower))
	pairs := make([]ringPair, 0, max(len(upper), len(lower)))
	for _, c := range cands {
		if uDone[c.u] || lDone[c.l] {
			continue
		}
		uDone[c.u], lDone[c.l] = true, true
		pairs = append(pairs, ringPair{upper: upper[c.u], lower: lower[c.l]})
	}
	for _, c := range cands {
		switch {
		case !uDone[c.u]:
			uDone[c.u] = true
			pairs = append(pairs, ringPair{upper: upper[c.u], lower: lower[c.l]})
		case !lDone[c.l]:
			lDone[c.l] = true
			pairs = append(pairs, ringPair{upper: upper[c.u], lower: lower[c.l]})
		}
	}
	return pairs
}

// carry pairs every ring with itself.
func carry(rings []geometry.Contour) []ringPair {
	pairs := make([]ringPair, len(rings))
	for i, c := range rings {
		pairs[i] = ringPair{upper: c, lower: c}
	}
	return pairs
}

func centroids(rings []geometry.Contour) []geometry.Point2D {
	out := make([]geometry.Point2D, len(rings))
	for i, c := range rings {
		out[i] = c.Centroid()
	}
	return out
}

func matchPlane(positions []float64, z float64) int {
	for i, p := range positions {
		if math.Abs(p-z) < zMatchTolerance {
			return i
		}
	}
	return -1
}
