package dose

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DICOMDose carries the RT Dose attributes needed to place the pixel data in
// patient space. Pixels are the stored values, frame-major.
type DICOMDose struct {
	Rows                    int
	Columns                 int
	Pixels                  []float64
	DoseGridScaling         float64
	ImagePositionPatient    [3]float64
	ImageOrientationPatient [6]float64
	PixelSpacing            [2]float64
	GridFrameOffsetVector   []float64
}

// PatientAxes returns the x and y axes of the dose image from the
// image-to-patient transformation of DICOM PS3.3 C.7.6.2.1.1.
func (d DICOMDose) PatientAxes() (x, y []float64) {
	di, dj := d.PixelSpacing[0], d.PixelSpacing[1]
	o, pos := d.ImageOrientationPatient, d.ImagePositionPatient

	m := mat.NewDense(4, 4, []float64{
		o[0] * di, o[3] * dj, 0, pos[0],
		o[1] * di, o[4] * dj, 0, pos[1],
		o[2] * di, o[5] * dj, 0, pos[2],
		0, 0, 0, 1,
	})

	var v mat.VecDense
	x = make([]float64, d.Columns)
	for i := range x {
		v.MulVec(m, mat.NewVecDense(4, []float64{float64(i), 0, 0, 1}))
		x[i] = v.AtVec(0)
	}
	y = make([]float64, d.Rows)
	for j := range y {
		v.MulVec(m, mat.NewVecDense(4, []float64{0, float64(j), 0, 1}))
		y[j] = v.AtVec(1)
	}
	return x, y
}

// SlicePositions returns the z of each frame: the frame offsets signed by the
// first orientation cosine, shifted by the image position.
func (d DICOMDose) SlicePositions() []float64 {
	z := make([]float64, len(d.GridFrameOffsetVector))
	for k, off := range d.GridFrameOffsetVector {
		z[k] = d.ImageOrientationPatient[0]*off + d.ImagePositionPatient[2]
	}
	return z
}

// FromDICOM builds a field in cGy from RT Dose attributes.
func FromDICOM(d DICOMDose) (*Field, error) {
	if d.Rows <= 0 || d.Columns <= 0 {
		return nil, fmt.Errorf("dose: invalid image size %dx%d", d.Rows, d.Columns)
	}
	if len(d.GridFrameOffsetVector) == 0 {
		return nil, errors.New("dose: missing grid frame offsets")
	}
	if d.DoseGridScaling <= 0 {
		return nil, fmt.Errorf("dose: invalid dose grid scaling %v", d.DoseGridScaling)
	}
	if d.PixelSpacing[0] <= 0 || d.PixelSpacing[1] <= 0 {
		return nil, fmt.Errorf("dose: invalid pixel spacing %v", d.PixelSpacing)
	}
	if want := d.Rows * d.Columns * len(d.GridFrameOffsetVector); len(d.Pixels) != want {
		return nil, fmt.Errorf("dose: %d pixels, want %d", len(d.Pixels), want)
	}

	values := make([]float64, len(d.Pixels))
	floats.ScaleTo(values, d.DoseGridScaling*100, d.Pixels)

	x, y := d.PatientAxes()
	return New(values, x, y, d.SlicePositions())
}
