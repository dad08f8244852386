package dvh

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"
)

// DVH is a cumulative dose-volume histogram: Data[i] is the volume (cm³)
// receiving at least DoseAxis[i] cGy.
//
// Min and Max are the lower edges of the first and last occupied bins; Mean
// weights the bin centres by their volume.
type DVH struct {
	DoseAxis    []float64 `json:"dose_axis"`
	Data        []float64 `json:"data"`
	Bins        int       `json:"bins"`
	Type        string    `json:"type"`
	DoseUnits   string    `json:"doseunits"`
	VolumeUnits string    `json:"volumeunits"`
	Scaling     float64   `json:"scaling"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Mean        float64   `json:"mean"`
}

// NewDVH wraps a cumulative volume array sampled every binSize cGy from 0.
func NewDVH(cumulative []float64, binSize float64) *DVH {
	if cumulative == nil {
		cumulative = []float64{}
	}
	d := &DVH{
		DoseAxis:    make([]float64, len(cumulative)),
		Data:        cumulative,
		Bins:        len(cumulative),
		Type:        "CUMULATIVE",
		DoseUnits:   "cGY",
		VolumeUnits: "CM3",
		Scaling:     binSize,
	}
	for i := range d.DoseAxis {
		d.DoseAxis[i] = float64(i) * binSize
	}
	d.summarise()
	return d
}

// summarise fills Min, Max and Mean from the differential histogram.
func (d *DVH) summarise() {
	diff := d.Differential()
	first, last := -1, -1
	for i, v := range diff {
		if v > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return
	}
	d.Min = d.DoseAxis[first]
	d.Max = d.DoseAxis[last]

	centres := make([]float64, len(d.DoseAxis))
	for i, edge := range d.DoseAxis {
		centres[i] = edge + d.Scaling/2
	}
	d.Mean = stat.Mean(centres, diff)
}

// Volume returns the structure volume covered by the histogram.
func (d *DVH) Volume() float64 {
	if len(d.Data) == 0 {
		return 0
	}
	return d.Data[0]
}

// Differential returns the volume in each dose bin.
func (d *DVH) Differential() []float64 {
	n := len(d.Data)
	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		next := 0.0
		if i+1 < n {
			next = d.Data[i+1]
		}
		diff[i] = d.Data[i] - next
	}
	return diff
}

// extended closes the curve with a zero volume one bin past the last dose.
func (d *DVH) extended() (doses, volumes []float64) {
	n := len(d.Data)
	doses = make([]float64, n+1)
	volumes = make([]float64, n+1)
	copy(doses, d.DoseAxis)
	copy(volumes, d.Data)
	doses[n] = float64(n) * d.Scaling
	return doses, volumes
}

// VolumeAtDose returns the volume (cm³) receiving at least dose cGy.
func (d *DVH) VolumeAtDose(dose float64) float64 {
	if len(d.Data) == 0 {
		return 0
	}
	doses, volumes := d.extended()
	var pl interp.PiecewiseLinear
	if err := pl.Fit(doses, volumes); err != nil {
		return 0
	}
	return pl.Predict(dose)
}

// RelativeVolumeAtDose returns VolumeAtDose as a percentage of the volume.
func (d *DVH) RelativeVolumeAtDose(dose float64) float64 {
	v := d.Volume()
	if v == 0 {
		return 0
	}
	return d.VolumeAtDose(dose) / v * 100
}

// DoseAtVolume returns the highest dose (cGy) received by at least volume
// cm³, interpolating linearly between bins.
func (d *DVH) DoseAtVolume(volume float64) float64 {
	if len(d.Data) == 0 || volume > d.Data[0] {
		return 0
	}
	doses, volumes := d.extended()
	if volume <= 0 {
		return doses[len(doses)-1]
	}

	for i := 1; i < len(volumes); i++ {
		if volumes[i] < volume {
			hi, lo := volumes[i-1], volumes[i]
			return doses[i-1] + (hi-volume)/(hi-lo)*(doses[i]-doses[i-1])
		}
	}
	return doses[len(doses)-1]
}

// DoseAtRelativeVolume returns DoseAtVolume for a percentage of the volume.
func (d *DVH) DoseAtRelativeVolume(percent float64) float64 {
	return d.DoseAtVolume(d.Volume() * percent / 100)
}

// HomogeneityIndex returns (D1% - D99%) / reference.
func HomogeneityIndex(d *DVH, reference float64) float64 {
	if reference == 0 {
		return math.NaN()
	}
	return (d.DoseAtRelativeVolume(1) - d.DoseAtRelativeVolume(99)) / reference
}

// GradientIndex returns the volume receiving half the reference dose divided
// by the volume receiving the reference dose, both read from the DVH of an
// external (body) structure.
func GradientIndex(external *DVH, reference float64) float64 {
	piv := external.VolumeAtDose(reference)
	if piv == 0 {
		return math.NaN()
	}
	return external.VolumeAtDose(reference/2) / piv
}

// Equal reports whether two histograms carry the same curve within tol cm³.
func (d *DVH) Equal(o *DVH, tol float64) bool {
	return d.Scaling == o.Scaling && floats.EqualApprox(d.Data, o.Data, tol)
}
