package models

// Case is a calculation input: one dose distribution and the structures
// delineated on it. It is read from JSON or YAML.
type Case struct {
	// Dose is the dose distribution the structures are evaluated in.
	Dose Dose `json:"dose" yaml:"dose"`

	// Structures are the delineated regions of interest.
	Structures []Structure `json:"structures" yaml:"structures"`
}

// Dose describes a dose distribution in one of two forms.
//
// The DICOM form carries the RT Dose tags: Rows, Columns, the per-frame
// GridFrameOffsetVector, the stored Pixels in frame-major order and the
// DoseGridScaling that converts them to Gy.
//
// The grid form carries the patient axes X, Y, Z in mm and Values already in
// cGy, with x varying fastest.
type Dose struct {
	Rows                    int       `json:"rows,omitempty" yaml:"rows,omitempty"`
	Columns                 int       `json:"columns,omitempty" yaml:"columns,omitempty"`
	Frames                  int       `json:"frames,omitempty" yaml:"frames,omitempty"`
	DoseGridScaling         float64   `json:"dose_grid_scaling,omitempty" yaml:"dose_grid_scaling,omitempty"`
	ImagePositionPatient    []float64 `json:"image_position_patient,omitempty" yaml:"image_position_patient,omitempty"`
	ImageOrientationPatient []float64 `json:"image_orientation_patient,omitempty" yaml:"image_orientation_patient,omitempty"`
	PixelSpacing            []float64 `json:"pixel_spacing,omitempty" yaml:"pixel_spacing,omitempty"`
	GridFrameOffsetVector   []float64 `json:"grid_frame_offset_vector,omitempty" yaml:"grid_frame_offset_vector,omitempty"`
	Pixels                  []float64 `json:"pixels,omitempty" yaml:"pixels,omitempty"`

	X      []float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y      []float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Z      []float64 `json:"z,omitempty" yaml:"z,omitempty"`
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty"`
}

// IsDICOM reports whether d uses the DICOM form.
func (d Dose) IsDICOM() bool {
	return len(d.Pixels) > 0
}

// Structure is a delineated region of interest.
type Structure struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Thickness overrides the slab thickness (mm) derived from the plane
	// spacing. Zero keeps the derived value.
	Thickness float64 `json:"thickness,omitempty" yaml:"thickness,omitempty"`

	// EndCap moves the first and last plane outwards by half a slab when the
	// structure is small.
	EndCap bool `json:"end_cap,omitempty" yaml:"end_cap,omitempty"`

	// Contours are closed planar rings of [x, y, z] points in mm.
	Contours [][][3]float64 `json:"contours" yaml:"contours"`
}
