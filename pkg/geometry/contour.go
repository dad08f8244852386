package geometry

import "math"

// Contour is one closed ring on an axial plane.
type Contour struct {
	// Points are the ring vertices; the last connects back to the first.
	Points []Point2D

	// Z is the plane position in mm.
	Z float64

	// SignedArea is the shoelace area; positive for counter-clockwise rings.
	SignedArea float64

	// Area is the absolute area in mm².
	Area float64
}

// NewContour builds a contour and precomputes its area.
func NewContour(z float64, points []Point2D) Contour {
	pts := make([]Point2D, len(points))
	copy(pts, points)
	signed := SignedArea(pts)
	return Contour{
		Points:     pts,
		Z:          z,
		SignedArea: signed,
		Area:       math.Abs(signed),
	}
}

// ContourFromPoints builds a contour from 3D ring points, using the first
// point's z as the plane position.
func ContourFromPoints(points []Point3D) Contour {
	xy := make([]Point2D, len(points))
	z := 0.0
	if len(points) > 0 {
		z = points[0].Z
	}
	for i, p := range points {
		xy[i] = p.XY()
	}
	return NewContour(z, xy)
}

// Degenerate reports rings that cannot enclose anything.
func (c Contour) Degenerate() bool {
	return len(c.Points) < 3 || c.Area == 0
}

// WithZ returns a copy of the contour moved to another plane.
func (c Contour) WithZ(z float64) Contour {
	c.Z = z
	return c
}

// Points3D returns the ring vertices tagged with the contour's z.
func (c Contour) Points3D() []Point3D {
	out := make([]Point3D, len(c.Points))
	for i, p := range c.Points {
		out[i] = Point3D{X: p.X, Y: p.Y, Z: c.Z}
	}
	return out
}

// Centroid returns the area centroid of the ring. Degenerate rings fall back
// to the vertex mean.
func (c Contour) Centroid() Point2D {
	n := len(c.Points)
	if n == 0 {
		return Point2D{}
	}
	if c.SignedArea == 0 {
		var sx, sy float64
		for _, p := range c.Points {
			sx += p.X
			sy += p.Y
		}
		return Point2D{X: sx / float64(n), Y: sy / float64(n)}
	}

	var cx, cy float64
	for i := 0; i < n; i++ {
		a := c.Points[i]
		b := c.Points[(i+1)%n]
		cross := a.X*b.Y - b.X*a.Y
		cx += (a.X + b.X) * cross
		cy += (a.Y + b.Y) * cross
	}
	return Point2D{X: cx / (6 * c.SignedArea), Y: cy / (6 * c.SignedArea)}
}

// SignedArea computes the Surveyor's (shoelace) area of a closed ring.
func SignedArea(points []Point2D) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		a := points[i]
		b := points[(i+1)%n]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// Area returns the absolute shoelace area of a closed ring in mm².
func Area(points []Point2D) float64 {
	return math.Abs(SignedArea(points))
}

// Nesting is the inclusion/exclusion resolution of the rings on one plane.
type Nesting struct {
	// Largest is the index of the ring with the largest area.
	Largest int

	// Signs holds +1 for rings that add to the plane and -1 for holes.
	Signs []float64
}

// Inside reports whether ring i was resolved as a hole of the largest ring.
func (n Nesting) Inside(i int) bool {
	return n.Signs[i] < 0
}

// ResolveNesting finds the largest ring on a plane and classifies every other
// ring as a hole or a separate region.
//
// A ring is taken to be inside the largest ring as soon as one of its vertices
// is inside it; partially overlapping rings are not split.
func ResolveNesting(contours []Contour) Nesting {
	res := Nesting{Signs: make([]float64, len(contours))}
	if len(contours) == 0 {
		return res
	}

	largest := 0.0
	for i, c := range contours {
		if c.Area > largest {
			largest = c.Area
			res.Largest = i
		}
	}

	ref := contours[res.Largest].Points
	for i, c := range contours {
		res.Signs[i] = 1
		if i == res.Largest {
			continue
		}
		for _, p := range c.Points {
			if WindingNumber(p, ref) != 0 {
				res.Signs[i] = -1
				break
			}
		}
	}
	return res
}

// NetArea returns the plane area after subtracting holes, in mm².
func NetArea(contours []Contour) float64 {
	nesting := ResolveNesting(contours)
	area := 0.0
	for i, c := range contours {
		area += nesting.Signs[i] * c.Area
	}
	return area
}
