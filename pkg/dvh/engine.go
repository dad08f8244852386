// Package dvh accumulates dose-volume histograms and conformity indices for
// delineated structures in a 3D dose field.
//
// A calculation walks the structure planes in ascending z. On each plane the
// rings are rasterised onto the dose sampling lattice, the dose inside each
// ring is binned, and the per-ring histograms are added or subtracted
// according to ring nesting. The summed differential histogram is then
// normalised to the structure volume and integrated into a cumulative DVH.
package dvh

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dvhcalc/pkg/dose"
	"dvhcalc/pkg/geometry"
	"dvhcalc/pkg/grid"
	"dvhcalc/pkg/interpolation"
)

// Options holds the engine configuration.
type Options struct {
	// BinSize is the histogram bin width in cGy.
	BinSize float64

	// Upsample resamples small structures and the dose lattice at DeltaMM
	// before accumulation.
	Upsample bool

	// DeltaMM is the requested x, y and z resolution of the up-sampled grid.
	DeltaMM [3]float64

	// EndCap caps every small structure, in addition to structures that
	// carry their own EndCap flag.
	EndCap bool

	// SmallVolumeCC is the volume (cm³) below which a structure is treated as
	// small: only small structures are up-sampled or end-capped.
	SmallVolumeCC float64

	// Logger receives per-structure diagnostics. Nil discards them.
	Logger *log.Logger
}

// DefaultOptions returns the standard engine configuration.
func DefaultOptions() Options {
	return Options{
		BinSize:       1,
		DeltaMM:       [3]float64{0.5, 0.5, 0.5},
		SmallVolumeCC: 25,
	}
}

// Engine computes DVHs and conformity indices. An Engine holds no mutable
// state and may be shared between goroutines.
type Engine struct {
	opts   Options
	logger *log.Logger
}

// NewEngine creates an engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.BinSize <= 0 {
		opts.BinSize = def.BinSize
	}
	for i := range opts.DeltaMM {
		if opts.DeltaMM[i] <= 0 {
			opts.DeltaMM[i] = def.DeltaMM[i]
		}
	}
	if opts.SmallVolumeCC <= 0 {
		opts.SmallVolumeCC = def.SmallVolumeCC
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{opts: opts, logger: logger}
}

// Options returns the effective configuration.
func (e *Engine) Options() Options {
	return e.opts
}

// Result is the outcome of a DVH calculation.
type Result struct {
	// DVH is the cumulative histogram; empty for structures without volume
	// or dose.
	DVH *DVH

	// Volume is the volume (cm³) of the planes that were processed.
	Volume float64

	// Planes is the number of processed planes.
	Planes int

	// Upsampled reports whether the up-sampled pipeline was used.
	Upsampled bool

	// Truncated is set when a plane fell outside the dose grid and the
	// remaining planes were skipped. StoppedAtZ is that plane's position.
	Truncated  bool
	StoppedAtZ float64
}

// setup is the sampling configuration of one calculation.
type setup struct {
	planes    []geometry.Plane
	lattice   *grid.Lattice2D
	points    []geometry.Point2D
	dz        float64
	voxel     float64
	upsampled bool
	capped    bool

	// source holds the delineated (possibly capped) planes an up-sampled
	// stack was resampled from, spaced sourceDZ apart.
	source   []geometry.Plane
	sourceDZ float64
}

// volume returns the cm³ volume of the processed planes. An up-sampled stack
// reports the volume of the delineated planes it covers. Capped stacks are
// unevenly spaced at the ends, so each plane spans half the gap to its
// neighbours.
func (st *setup) volume(processed []geometry.Plane) float64 {
	planes, dz := processed, st.dz
	if st.upsampled {
		planes, dz = st.covered(processed), st.sourceDZ
	}
	if st.capped {
		return geometry.SlabVolume(planes)
	}
	return geometry.PlanesVolume(planes, dz)
}

// covered returns the source planes up to the last processed plane.
func (st *setup) covered(processed []geometry.Plane) []geometry.Plane {
	if len(processed) == 0 {
		return nil
	}
	last := processed[len(processed)-1].Z
	n := sort.Search(len(st.source), func(i int) bool {
		return st.source[i].Z > last+1e-6
	})
	return st.source[:n]
}

// prepare chooses between the native and the up-sampled pipeline.
func (e *Engine) prepare(s *geometry.Structure, field *dose.Field) (*setup, error) {
	small := s.Volume() < e.opts.SmallVolumeCC
	planes, capped := s.EffectivePlanes(e.opts.EndCap, e.opts.SmallVolumeCC)

	dz := s.Thickness()
	if dz <= 0 {
		dz = geometry.PlaneThickness(geometry.PlanePositions(planes))
	}

	if e.opts.Upsample && small && len(planes) >= 2 {
		lattice, err := grid.Build3D(field.Axes(), e.opts.DeltaMM)
		if err != nil {
			return nil, fmt.Errorf("dvh: up-sampling dose grid: %w", err)
		}
		zs, zDelta, err := grid.AxisUpsample(lattice.Delta[2], geometry.PlanePositions(planes))
		if err != nil {
			return nil, fmt.Errorf("dvh: up-sampling structure planes: %w", err)
		}
		resampled, err := interpolation.Resample(planes, zs)
		if err != nil {
			return nil, fmt.Errorf("dvh: up-sampling structure planes: %w", err)
		}

		// The z axis of the up-sampled lattice follows the structure planes.
		lattice.Z, lattice.Delta[2] = zs, zDelta
		e.logger.Printf("structure %q: up-sampled to %d planes, grid delta [%.3f %.3f %.3f] mm",
			s.Name, len(resampled), lattice.Delta[0], lattice.Delta[1], lattice.Delta[2])

		return &setup{
			planes:    resampled,
			lattice:   lattice.Plane(),
			points:    lattice.Points(),
			dz:        zDelta,
			voxel:     lattice.VoxelVolume(),
			upsampled: true,
			capped:    capped,
			source:    planes,
			sourceDZ:  dz,
		}, nil
	}

	lattice := field.Lattice()
	dx, dy := lattice.Spacing()
	return &setup{
		planes:  planes,
		lattice: lattice,
		points:  lattice.Points(),
		dz:      dz,
		voxel:   dx * dy * dz,
		capped:  capped,
	}, nil
}

// Calculate computes the cumulative DVH of s in field.
func (e *Engine) Calculate(s *geometry.Structure, field *dose.Field) (*Result, error) {
	st, err := e.prepare(s, field)
	if err != nil {
		return nil, err
	}

	res := &Result{Upsampled: st.upsampled}
	binSize := e.opts.BinSize
	nbins := int(math.Ceil(field.MaxDose() / binSize))
	if len(st.planes) == 0 || nbins <= 0 {
		e.logger.Printf("structure %q: nothing to accumulate", s.Name)
		res.DVH = NewDVH(nil, binSize)
		return res, nil
	}

	dividers := floats.Span(make([]float64, nbins+1), 0, float64(nbins)*binSize)
	dividers[nbins] = math.Nextafter(dividers[nbins], math.Inf(1))
	hist := make([]float64, nbins)
	counts := make([]float64, nbins)

	rows, cols := st.lattice.Rows(), st.lattice.Cols()
	processed := make([]geometry.Plane, 0, len(st.planes))
	for _, plane := range st.planes {
		nesting := geometry.ResolveNesting(plane.Contours)

		dp, err := field.PlaneAt(plane.Z, st.lattice)
		if errors.Is(err, dose.ErrNoDoseCoverage) {
			e.logger.Printf("structure %q: no dose at z=%.2f, stopping", s.Name, plane.Z)
			res.Truncated = true
			res.StoppedAtZ = plane.Z
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dvh: structure %q at z=%.2f: %w", s.Name, plane.Z, err)
		}

		for i, c := range plane.Contours {
			if c.Degenerate() {
				e.logger.Printf("structure %q: skipping degenerate ring %d at z=%.2f", s.Name, i, plane.Z)
				continue
			}
			mask, err := geometry.Rasterize(c, st.points, rows, cols)
			if err != nil {
				return nil, fmt.Errorf("dvh: structure %q at z=%.2f: %w", s.Name, plane.Z, err)
			}

			binDose(counts, dividers, maskedDose(mask, dp))
			floats.AddScaled(hist, nesting.Signs[i]*st.voxel, counts)
		}
		processed = append(processed, plane)
	}

	res.Planes = len(processed)
	res.Volume = st.volume(processed)
	res.DVH = NewDVH(integrate(hist, res.Volume), binSize)
	return res, nil
}

// maskedDose returns the dose values under the occupied mask cells.
func maskedDose(mask *geometry.Mask, dp *dose.Plane) []float64 {
	values := make([]float64, 0, mask.Count())
	for i, in := range mask.Data {
		if in {
			values = append(values, dp.Values[i])
		}
	}
	return values
}

// binDose fills counts with the histogram of values over dividers. Values
// outside the divider range are dropped.
func binDose(counts, dividers, values []float64) {
	hi := dividers[len(dividers)-1]
	kept := values[:0]
	for _, v := range values {
		if v >= 0 && v < hi {
			kept = append(kept, v)
		}
	}
	for i := range counts {
		counts[i] = 0
	}
	if len(kept) == 0 {
		return
	}
	sort.Float64s(kept)
	stat.Histogram(counts, dividers, kept, nil)
}

// integrate turns a differential histogram in mm³ into a cumulative one in
// cm³ whose first bin equals volume. Negative bins left by hole subtraction
// are clamped and trailing empty bins are trimmed.
func integrate(hist []float64, volume float64) []float64 {
	diff := make([]float64, len(hist))
	for i, v := range hist {
		if v > 0 {
			diff[i] = v
		}
	}

	total := floats.Sum(diff)
	switch {
	case total == 0:
		return nil
	case volume > 0:
		floats.Scale(volume/total, diff)
	default:
		floats.Scale(1.0/1000, diff)
	}

	cumulative := make([]float64, len(diff))
	acc := 0.0
	for i := len(diff) - 1; i >= 0; i-- {
		acc += diff[i]
		cumulative[i] = acc
	}

	last := len(cumulative) - 1
	for last >= 0 && cumulative[last] == 0 {
		last--
	}
	return cumulative[:last+1]
}
