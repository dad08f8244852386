package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
)

// planarTolerance is the largest z spread (mm) accepted within one ring.
const planarTolerance = 0.01

// ErrEmptyContour is returned when a ring without points is added.
var ErrEmptyContour = errors.New("geometry: contour has no points")

// Plane holds every ring of a structure on one axial slice.
type Plane struct {
	// Key is the z position formatted with two decimals.
	Key string

	// Z is the numeric slice position in mm.
	Z float64

	// Contours are the rings on this slice in input order.
	Contours []Contour
}

// ZKey formats a slice position as a plane key ("%.2f"). Negative zero is
// normalised so that -0.001 and 0.001 share the key "0.00".
func ZKey(z float64) string {
	key := strconv.FormatFloat(z, 'f', 2, 64)
	if key == "-0.00" {
		return "0.00"
	}
	return key
}

// Structure is a delineated region stored as a stack of axial planes.
//
// Derived properties (ordered planes, volume) are computed on demand and
// cached until the next AddContour call.
type Structure struct {
	// ID is the ROI number of the structure.
	ID int

	// Name is the ROI name.
	Name string

	// EndCap enables half-thickness end capping for small structures.
	EndCap bool

	thickness      float64
	fixedThickness bool
	planes         map[string]*Plane

	mu      sync.Mutex
	dirty   bool
	ordered []Plane
	volume  float64
}

// NewStructure creates an empty structure.
func NewStructure(id int, name string) *Structure {
	return &Structure{
		ID:     id,
		Name:   name,
		planes: make(map[string]*Plane),
		dirty:  true,
	}
}

// AddContour appends a ring given as 3D points. All points must share the
// same z within planarTolerance.
func (s *Structure) AddContour(points []Point3D) error {
	if len(points) == 0 {
		return ErrEmptyContour
	}
	z := points[0].Z
	for _, p := range points[1:] {
		if math.Abs(p.Z-z) > planarTolerance {
			return fmt.Errorf("geometry: structure %q: ring is not planar (z %.3f and %.3f)", s.Name, z, p.Z)
		}
	}

	c := ContourFromPoints(points)
	key := ZKey(z)

	s.mu.Lock()
	defer s.mu.Unlock()

	plane, ok := s.planes[key]
	if !ok {
		plane = &Plane{Key: key, Z: z}
		s.planes[key] = plane
	}
	plane.Contours = append(plane.Contours, c)
	s.dirty = true
	return nil
}

// SetThickness fixes the slice thickness instead of deriving it from the
// plane positions. A non-positive value restores the derived thickness.
func (s *Structure) SetThickness(t float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thickness = t
	s.fixedThickness = t > 0
	s.dirty = true
}

// Thickness returns the nominal slice spacing in mm.
func (s *Structure) Thickness() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh()
	return s.thickness
}

// Planes returns the planes ordered by ascending z.
func (s *Structure) Planes() []Plane {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh()
	out := make([]Plane, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// OrderedZ returns the ascending plane positions.
func (s *Structure) OrderedZ() []float64 {
	return PlanePositions(s.Planes())
}

// Volume returns the structure volume in cm³ using its own thickness.
func (s *Structure) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh()
	return s.volume
}

// Capped returns the ordered planes with the first and last plane moved
// outwards by half the slice thickness.
func (s *Structure) Capped() []Plane {
	planes := s.Planes()
	t := s.Thickness()
	if len(planes) < 2 || t <= 0 {
		return planes
	}

	first, last := planes[0], planes[len(planes)-1]
	planes[0] = movePlane(first, first.Z-t/2)
	planes[len(planes)-1] = movePlane(last, last.Z+t/2)
	return planes
}

// EffectivePlanes returns the planes used for dose accumulation and whether
// they are end-capped. Capping applies when the structure or capAll asks for
// it, at least two planes exist and the uncapped volume is below smallVolume
// (cm³).
func (s *Structure) EffectivePlanes(capAll bool, smallVolume float64) ([]Plane, bool) {
	planes := s.Planes()
	if (s.EndCap || capAll) && len(planes) >= 2 && s.Volume() < smallVolume {
		return s.Capped(), true
	}
	return planes, false
}

// refresh rebuilds the cached properties; callers hold s.mu.
func (s *Structure) refresh() {
	if !s.dirty {
		return
	}

	ordered := make([]Plane, 0, len(s.planes))
	for _, p := range s.planes {
		ordered = append(ordered, *p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Z < ordered[j].Z })

	if !s.fixedThickness {
		s.thickness = PlaneThickness(PlanePositions(ordered))
	}
	s.ordered = ordered
	s.volume = PlanesVolume(ordered, s.thickness)
	s.dirty = false
}

// movePlane copies a plane to a new z, retagging its rings.
func movePlane(p Plane, z float64) Plane {
	out := Plane{Key: ZKey(z), Z: z, Contours: make([]Contour, len(p.Contours))}
	for i, c := range p.Contours {
		out.Contours[i] = c.WithZ(z)
	}
	return out
}

// PlanePositions extracts the z of each plane.
func PlanePositions(planes []Plane) []float64 {
	zs := make([]float64, len(planes))
	for i, p := range planes {
		zs[i] = p.Z
	}
	return zs
}

// PlaneThickness returns the smallest gap between sorted plane positions, or
// 0 when fewer than two planes exist.
func PlaneThickness(zs []float64) float64 {
	if len(zs) < 2 {
		return 0
	}
	sorted := make([]float64, len(zs))
	copy(sorted, zs)
	sort.Float64s(sorted)

	thickness := math.Inf(1)
	for i := 1; i < len(sorted); i++ {
		if gap := sorted[i] - sorted[i-1]; gap > 0 && gap < thickness {
			thickness = gap
		}
	}
	if math.IsInf(thickness, 1) {
		return 0
	}
	return thickness
}
