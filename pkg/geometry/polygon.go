// Package geometry implements the planar contour geometry used by the DVH
// engine: point-in-polygon classification, contour areas, nested ring
// resolution, rasterisation onto a dose sampling grid and structure volume.
//
// Coordinates are patient millimetres. A polygon is an ordered vertex list
// that is implicitly closed (the last vertex connects back to the first).
package geometry

// Point2D is a position on an axial plane in patient coordinates (mm).
type Point2D struct {
	X, Y float64
}

// Point3D is a position in patient coordinates (mm).
type Point3D struct {
	X, Y, Z float64
}

// XY drops the z coordinate.
func (p Point3D) XY() Point2D {
	return Point2D{X: p.X, Y: p.Y}
}

// IsLeft tests whether p2 is left of, on, or right of the infinite line
// through p0 and p1.
//
// Returns:
//   - > 0 when p2 is left of the line
//   - = 0 when p2 is on the line
//   - < 0 when p2 is right of the line
func IsLeft(p0, p1, p2 Point2D) float64 {
	return (p1.X-p0.X)*(p2.Y-p0.Y) - (p2.X-p0.X)*(p1.Y-p0.Y)
}

// WindingNumber computes the winding number of poly around p.
//
// An upward edge crossing counts +1 when p is strictly left of the edge and a
// downward crossing counts -1 when p is strictly right of it. The point is
// inside when the result is non-zero. Points lying exactly on an edge are not
// counted by that edge, so boundary points classify as outside unless another
// crossing catches them.
func WindingNumber(p Point2D, poly []Point2D) int {
	n := len(poly)
	if n < 3 {
		return 0
	}

	wn := 0
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		if a.Y <= p.Y {
			if b.Y > p.Y && IsLeft(a, b, p) > 0 {
				wn++
			}
		} else if b.Y <= p.Y && IsLeft(a, b, p) < 0 {
			wn--
		}
	}
	return wn
}

// Contains reports whether p lies inside poly under the winding number rule.
// Degenerate polygons contain nothing.
func Contains(poly []Point2D, p Point2D) bool {
	if isDegenerate(poly) {
		return false
	}
	return WindingNumber(p, poly) != 0
}

// BatchContains classifies every point against one polygon with the same rule
// as WindingNumber. Points outside the polygon's bounding box are rejected
// without walking the edges.
func BatchContains(poly []Point2D, points []Point2D) []bool {
	out := make([]bool, len(points))
	if isDegenerate(poly) {
		return out
	}

	lo, hi := bounds(poly)
	for i, p := range points {
		if p.X < lo.X || p.X > hi.X || p.Y < lo.Y || p.Y > hi.Y {
			continue
		}
		out[i] = WindingNumber(p, poly) != 0
	}
	return out
}

// bounds returns the lower-left and upper-right corners of the vertex set.
func bounds(poly []Point2D) (lo, hi Point2D) {
	if len(poly) == 0 {
		return
	}
	lo, hi = poly[0], poly[0]
	for _, p := range poly[1:] {
		if p.X < lo.X {
			lo.X = p.X
		}
		if p.X > hi.X {
			hi.X = p.X
		}
		if p.Y < lo.Y {
			lo.Y = p.Y
		}
		if p.Y > hi.Y {
			hi.Y = p.Y
		}
	}
	return
}

// isDegenerate reports polygons with fewer than three vertices or no area.
func isDegenerate(poly []Point2D) bool {
	return len(poly) < 3 || SignedArea(poly) == 0
}
