package dvh

import (
	"errors"
	"fmt"

	"dvhcalc/pkg/dose"
	"dvhcalc/pkg/geometry"
)

// Conformity holds the Paddick conformity index and its volumes in cm³.
type Conformity struct {
	// PITV is the volume inside the prescription isodose.
	PITV float64 `json:"pitv"`

	// CV is the part of the target inside the prescription isodose.
	CV float64 `json:"cv"`

	// TV is the target volume.
	TV float64 `json:"tv"`

	CI float64 `json:"ci"`

	Truncated bool `json:"truncated,omitempty"`
}

// PaddickIndex returns CV² / (TV · PITV), or 0 when either volume is zero.
func PaddickIndex(cv, tv, pitv float64) float64 {
	if tv == 0 || pitv == 0 {
		return 0
	}
	return cv * cv / (tv * pitv)
}

// ConformityIndex computes the Paddick conformity index of s for the isodose
// above lowerLimit cGy.
//
// On every plane the isodose volume is counted once over the whole sampling
// lattice, with the largest ring. The covered volume sums the largest ring
// and the rings outside it; rings nested inside the largest ring are ignored
// rather than subtracted.
func (e *Engine) ConformityIndex(s *geometry.Structure, field *dose.Field, lowerLimit float64) (*Conformity, error) {
	st, err := e.prepare(s, field)
	if err != nil {
		return nil, err
	}

	res := &Conformity{}
	rows, cols := st.lattice.Rows(), st.lattice.Cols()
	processed := make([]geometry.Plane, 0, len(st.planes))
	var pitv, cv int

	for _, plane := range st.planes {
		nesting := geometry.ResolveNesting(plane.Contours)

		dp, err := field.PlaneAt(plane.Z, st.lattice)
		if errors.Is(err, dose.ErrNoDoseCoverage) {
			e.logger.Printf("structure %q: no dose at z=%.2f, stopping", s.Name, plane.Z)
			res.Truncated = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dvh: structure %q at z=%.2f: %w", s.Name, plane.Z, err)
		}

		for i, c := range plane.Contours {
			if i == nesting.Largest {
				pitv += countAbove(dp.Values, lowerLimit)
			}
			if nesting.Inside(i) {
				continue
			}
			mask, err := geometry.Rasterize(c, st.points, rows, cols)
			if err != nil {
				return nil, fmt.Errorf("dvh: structure %q at z=%.2f: %w", s.Name, plane.Z, err)
			}
			cv += countAbove(maskedDose(mask, dp), lowerLimit)
		}
		processed = append(processed, plane)
	}

	res.PITV = float64(pitv) * st.voxel / 1000
	res.CV = float64(cv) * st.voxel / 1000
	res.TV = st.volume(processed)
	res.CI = PaddickIndex(res.CV, res.TV, res.PITV)
	e.logger.Printf("structure %q: conformity index %.4f at %.1f cGy", s.Name, res.CI, lowerLimit)
	return res, nil
}

func countAbove(values []float64, limit float64) int {
	n := 0
	for _, v := range values {
		if v > limit {
			n++
		}
	}
	return n
}
