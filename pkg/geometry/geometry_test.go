package geometry

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rect returns the counter-clockwise ring of an axis-aligned rectangle.
func rect(x0, y0, x1, y1 float64) []Point2D {
	return []Point2D{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// circle returns an n-vertex ring approximating a circle.
func circle(cx, cy, r float64, n int) []Point2D {
	pts := make([]Point2D, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = Point2D{X: cx + r*math.Cos(a), Y: cy + r*math.Sin(a)}
	}
	return pts
}

// at lifts a ring onto plane z.
func at(z float64, ring []Point2D) []Point3D {
	out := make([]Point3D, len(ring))
	for i, p := range ring {
		out[i] = Point3D{X: p.X, Y: p.Y, Z: z}
	}
	return out
}

// rayCast is the even-odd reference classifier.
func rayCast(p Point2D, poly []Point2D) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

func TestIsLeft(t *testing.T) {
	p0, p1 := Point2D{0, 0}, Point2D{1, 0}
	assert.Greater(t, IsLeft(p0, p1, Point2D{0.5, 1}), 0.0)
	assert.Less(t, IsLeft(p0, p1, Point2D{0.5, -1}), 0.0)
	assert.Equal(t, 0.0, IsLeft(p0, p1, Point2D{3, 0}))
}

func TestWindingNumberMatchesRayCasting(t *testing.T) {
	polygons := map[string][]Point2D{
		"square":      rect(0, 0, 10, 10),
		"hexagon":     circle(3, -2, 7, 6),
		"fine circle": circle(0, 0, 25, 128),
		"clockwise":   {{0, 0}, {0, 8}, {12, 8}, {12, 0}},
		"triangle":    {{-5, -5}, {5, -5}, {0, 9}},
	}

	rng := rand.New(rand.NewSource(42))
	for name, poly := range polygons {
		lo, hi := bounds(poly)
		for i := 0; i < 2000; i++ {
			p := Point2D{
				X: lo.X - 5 + rng.Float64()*(hi.X-lo.X+10),
				Y: lo.Y - 5 + rng.Float64()*(hi.Y-lo.Y+10),
			}
			want := rayCast(p, poly)
			if got := Contains(poly, p); got != want {
				t.Errorf("%s: point %v classified %v, ray casting says %v", name, p, got, want)
			}
		}
	}
}

func TestWindingNumberOrientation(t *testing.T) {
	ccw := rect(0, 0, 4, 4)
	cw := []Point2D{ccw[3], ccw[2], ccw[1], ccw[0]}
	p := Point2D{2, 2}

	assert.Equal(t, 1, WindingNumber(p, ccw))
	assert.Equal(t, -1, WindingNumber(p, cw))
	assert.Equal(t, 0, WindingNumber(Point2D{9, 9}, ccw))
}

func TestBoundaryPolicy(t *testing.T) {
	sq := rect(0, 0, 10, 10)
	// The right edge is never caught by a crossing.
	assert.False(t, Contains(sq, Point2D{10, 5}))
	assert.False(t, Contains(sq, Point2D{5, 10}))
}

func TestDegeneratePolygons(t *testing.T) {
	tests := []struct {
		name string
		poly []Point2D
	}{
		{"empty", nil},
		{"two points", []Point2D{{0, 0}, {1, 1}}},
		{"collinear", []Point2D{{0, 0}, {1, 1}, {2, 2}, {3, 3}}},
	}

	pts := []Point2D{{0.5, 0.5}, {1, 1}, {-1, 2}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []bool{false, false, false}, BatchContains(tt.poly, pts))
			for _, p := range pts {
				assert.False(t, Contains(tt.poly, p))
			}
		})
	}
}

func TestBatchContainsMatchesSinglePoint(t *testing.T) {
	poly := circle(1, 1, 4, 40)
	var pts []Point2D
	for y := -5.0; y <= 5; y += 0.37 {
		for x := -5.0; x <= 5; x += 0.41 {
			pts = append(pts, Point2D{x, y})
		}
	}

	got := BatchContains(poly, pts)
	require.Len(t, got, len(pts))
	for i, p := range pts {
		assert.Equal(t, WindingNumber(p, poly) != 0, got[i], "point %v", p)
	}
}

func TestArea(t *testing.T) {
	unit := rect(0, 0, 1, 1)
	assert.Equal(t, 1.0, Area(unit))
	assert.Equal(t, 1.0, SignedArea(unit))

	reversed := []Point2D{unit[3], unit[2], unit[1], unit[0]}
	assert.Equal(t, -1.0, SignedArea(reversed))
	assert.Equal(t, 1.0, Area(reversed))

	assert.Equal(t, 0.0, Area([]Point2D{{0, 0}, {1, 1}}))
	assert.InDelta(t, math.Pi*100, Area(circle(0, 0, 10, 720)), 0.01)
}

func TestContourHelpers(t *testing.T) {
	c := NewContour(2.5, rect(0, 0, 10, 4))
	assert.Equal(t, 40.0, c.Area)
	assert.False(t, c.Degenerate())

	centroid := c.Centroid()
	assert.InDelta(t, 5, centroid.X, 1e-12)
	assert.InDelta(t, 2, centroid.Y, 1e-12)

	lo, hi := bounds(c.Points)
	assert.Equal(t, Point2D{0, 0}, lo)
	assert.Equal(t, Point2D{10, 4}, hi)

	moved := c.WithZ(-1)
	assert.Equal(t, -1.0, moved.Z)
	assert.Equal(t, 2.5, c.Z)
	for _, p := range moved.Points3D() {
		assert.Equal(t, -1.0, p.Z)
	}

	line := NewContour(0, []Point2D{{0, 0}, {1, 0}, {2, 0}})
	assert.True(t, line.Degenerate())
}

func TestResolveNesting(t *testing.T) {
	outer := NewContour(0, rect(0, 0, 10, 10))
	inner := NewContour(0, rect(2, 2, 7, 8))
	apart := NewContour(0, rect(20, 20, 25, 26))

	t.Run("enclosed ring is a hole", func(t *testing.T) {
		contours := []Contour{inner, outer}
		n := ResolveNesting(contours)
		assert.Equal(t, 1, n.Largest)
		assert.True(t, n.Inside(0))
		assert.False(t, n.Inside(1))
		assert.InDelta(t, 70, NetArea(contours), 1e-12)
	})

	t.Run("separate ring adds", func(t *testing.T) {
		contours := []Contour{outer, apart}
		n := ResolveNesting(contours)
		assert.Equal(t, 0, n.Largest)
		assert.Equal(t, []float64{1, 1}, n.Signs)
		assert.InDelta(t, 130, NetArea(contours), 1e-12)
	})

	t.Run("first largest wins ties", func(t *testing.T) {
		a := NewContour(0, rect(0, 0, 2, 2))
		b := NewContour(0, rect(5, 5, 7, 7))
		assert.Equal(t, 0, ResolveNesting([]Contour{a, b}).Largest)
	})

	t.Run("all degenerate", func(t *testing.T) {
		d := NewContour(0, []Point2D{{0, 0}, {1, 1}})
		n := ResolveNesting([]Contour{d, d})
		assert.Equal(t, 0, n.Largest)
		assert.Equal(t, 0.0, NetArea([]Contour{d, d}))
	})

	t.Run("empty plane", func(t *testing.T) {
		assert.Empty(t, ResolveNesting(nil).Signs)
		assert.Equal(t, 0.0, NetArea(nil))
	})
}

func TestRasterize(t *testing.T) {
	rows, cols := 10, 12
	points := make([]Point2D, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			points = append(points, Point2D{X: float64(c), Y: float64(r)})
		}
	}

	t.Run("covering rectangle", func(t *testing.T) {
		mask, err := Rasterize(NewContour(0, rect(-1, -1, 12, 10)), points, rows, cols)
		require.NoError(t, err)
		assert.True(t, mask.All())
		assert.Equal(t, rows*cols, mask.Count())
	})

	t.Run("zero area", func(t *testing.T) {
		mask, err := Rasterize(NewContour(0, []Point2D{{0, 0}, {5, 5}, {9, 9}}), points, rows, cols)
		require.NoError(t, err)
		assert.Equal(t, 0, mask.Count())
	})

	t.Run("interior block", func(t *testing.T) {
		mask, err := Rasterize(NewContour(0, rect(1.5, 2.5, 4.5, 5.5)), points, rows, cols)
		require.NoError(t, err)
		assert.Equal(t, 9, mask.Count())
		assert.True(t, mask.At(3, 2))
		assert.False(t, mask.At(0, 0))
	})

	t.Run("size mismatch", func(t *testing.T) {
		_, err := Rasterize(NewContour(0, rect(0, 0, 1, 1)), points, rows+1, cols)
		assert.Error(t, err)
	})
}

func TestZKey(t *testing.T) {
	tests := []struct {
		z    float64
		want string
	}{
		{0, "0.00"},
		{-0.001, "0.00"},
		{0.004, "0.00"},
		{1.234, "1.23"},
		{-12.5, "-12.50"},
		{-0.5, "-0.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ZKey(tt.z), "z=%v", tt.z)
	}
}

func TestStructureVolumeCircleStack(t *testing.T) {
	const (
		r       = 20.0
		n       = 9
		spacing = 2.5
	)
	s := NewStructure(1, "cylinder")
	for i := 0; i < n; i++ {
		require.NoError(t, s.AddContour(at(float64(i)*spacing, circle(0, 0, r, 360))))
	}

	want := math.Pi * r * r * spacing * (n - 1) / 1000
	assert.InEpsilon(t, want, s.Volume(), 0.02)
	assert.Equal(t, spacing, s.Thickness())
	assert.Len(t, s.Planes(), n)
}

func TestStructurePlanes(t *testing.T) {
	s := NewStructure(7, "box")
	// Added out of order; two rings on the middle plane.
	require.NoError(t, s.AddContour(at(4, rect(0, 0, 10, 10))))
	require.NoError(t, s.AddContour(at(0, rect(0, 0, 10, 10))))
	require.NoError(t, s.AddContour(at(2, rect(0, 0, 10, 10))))
	require.NoError(t, s.AddContour(at(2, rect(20, 20, 30, 30))))

	assert.Equal(t, []float64{0, 2, 4}, s.OrderedZ())
	assert.Equal(t, 2.0, s.Thickness())

	planes := s.Planes()
	assert.Equal(t, "2.00", planes[1].Key)
	assert.Len(t, planes[1].Contours, 2)

	// 50 + 200 + 50 mm² slabs of 2 mm.
	assert.InDelta(t, (100*1+200*2+100*1)/1000.0, s.Volume(), 1e-12)

	// Cache is invalidated by new contours.
	require.NoError(t, s.AddContour(at(6, rect(0, 0, 10, 10))))
	assert.Len(t, s.Planes(), 4)
	assert.InDelta(t, (100*1+200*2+100*2+100*1)/1000.0, s.Volume(), 1e-12)
}

func TestStructureInvalidInput(t *testing.T) {
	s := NewStructure(1, "bad")
	assert.ErrorIs(t, s.AddContour(nil), ErrEmptyContour)

	tilted := []Point3D{{0, 0, 0}, {1, 0, 0}, {1, 1, 0.5}}
	assert.Error(t, s.AddContour(tilted))
	assert.Empty(t, s.Planes())
}

func TestEmptyStructure(t *testing.T) {
	s := NewStructure(1, "empty")
	assert.Equal(t, 0.0, s.Volume())
	assert.Equal(t, 0.0, s.Thickness())
	assert.Empty(t, s.Capped())
}

func TestSinglePlaneStructure(t *testing.T) {
	s := NewStructure(1, "sheet")
	require.NoError(t, s.AddContour(at(3, rect(0, 0, 5, 5))))
	assert.Equal(t, 0.0, s.Thickness())
	assert.Equal(t, 0.0, s.Volume())

	s.SetThickness(3)
	assert.Equal(t, 3.0, s.Thickness())
	assert.InDelta(t, 25*1.5/1000, s.Volume(), 1e-12)
}

func TestEndCap(t *testing.T) {
	s := NewStructure(3, "small")
	for _, z := range []float64{-2, 0, 2} {
		require.NoError(t, s.AddContour(at(z, rect(0, 0, 10, 10))))
	}

	capped := s.Capped()
	require.Len(t, capped, 3)
	assert.Equal(t, -3.0, capped[0].Z)
	assert.Equal(t, "-3.00", capped[0].Key)
	assert.Equal(t, 3.0, capped[2].Z)
	assert.Equal(t, -3.0, capped[0].Contours[0].Z)
	assert.Equal(t, 0.0, capped[1].Z)

	// The stored planes are left alone.
	assert.Equal(t, []float64{-2, 0, 2}, s.OrderedZ())

	tests := []struct {
		endCap, capAll bool
		small          float64
		want           []float64
		capped         bool
	}{
		{false, false, 25, []float64{-2, 0, 2}, false},
		{true, false, 25, []float64{-3, 0, 3}, true},
		{false, true, 25, []float64{-3, 0, 3}, true},
		{true, true, 0.1, []float64{-2, 0, 2}, false},
	}
	for _, tt := range tests {
		s.EndCap = tt.endCap
		planes, capped := s.EffectivePlanes(tt.capAll, tt.small)
		assert.Equal(t, tt.want, PlanePositions(planes))
		assert.Equal(t, tt.capped, capped)
	}

	sheet := NewStructure(2, "sheet")
	sheet.EndCap = true
	require.NoError(t, sheet.AddContour(at(0, rect(0, 0, 10, 10))))
	sheetPlanes, sheetCapped := sheet.EffectivePlanes(true, 25)
	assert.False(t, sheetCapped)
	assert.Equal(t, []float64{0}, PlanePositions(sheetPlanes))
}

func TestPlaneThickness(t *testing.T) {
	assert.Equal(t, 0.0, PlaneThickness(nil))
	assert.Equal(t, 0.0, PlaneThickness([]float64{1}))
	assert.Equal(t, 0.0, PlaneThickness([]float64{1, 1}))
	assert.Equal(t, 1.5, PlaneThickness([]float64{6, 0, 3, 1.5}))
}

func TestPlanesVolume(t *testing.T) {
	planes := []Plane{
		{Z: 0, Contours: []Contour{NewContour(0, rect(0, 0, 10, 10))}},
		{Z: 1, Contours: []Contour{NewContour(1, rect(0, 0, 10, 10)), NewContour(1, rect(2, 2, 7, 8))}},
		{Z: 2, Contours: []Contour{NewContour(2, rect(0, 0, 10, 10))}},
	}
	assert.InDelta(t, (50+70+50)/1000.0, PlanesVolume(planes, 1), 1e-12)
	assert.Equal(t, 0.0, PlanesVolume(planes, 0))
	assert.Equal(t, 0.0, PlanesVolume(nil, 1))
}

func TestSlabVolume(t *testing.T) {
	s := NewStructure(1, "box")
	for _, z := range []float64{-2, 0, 2} {
		require.NoError(t, s.AddContour(at(z, rect(0, 0, 10, 10))))
	}
	assert.InDelta(t, s.Volume(), SlabVolume(s.Planes()), 1e-12)
	// Capped ends give every original plane a full slab.
	assert.InDelta(t, 0.6, SlabVolume(s.Capped()), 1e-12)
	assert.Equal(t, 0.0, SlabVolume(s.Planes()[:1]))
}
