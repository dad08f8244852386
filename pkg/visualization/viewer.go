// Package visualization exports dose distributions as grayscale images for
// visual inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"dvhcalc/pkg/dose"
	"dvhcalc/pkg/geometry"
)

// Viewer renders orthogonal slices of a dose field. Intensities are scaled so
// that the window dose maps to full white.
type Viewer struct {
	field *dose.Field

	// nx, ny, nz are the number of samples along each axis
	nx, ny, nz int

	// window is the dose (cGy) rendered as full intensity
	window float64
}

// NewViewer creates a viewer windowed on the field's maximum dose.
func NewViewer(field *dose.Field) *Viewer {
	size := field.Size()
	return &Viewer{
		field:  field,
		nx:     size[0],
		ny:     size[1],
		nz:     size[2],
		window: field.MaxDose(),
	}
}

// SetWindow changes the dose rendered as full intensity. Non-positive values
// are ignored.
func (v *Viewer) SetWindow(d float64) {
	if d > 0 {
		v.window = d
	}
}

func (v *Viewer) gray(d float64) color.Gray16 {
	if v.window <= 0 {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, d/v.window*65535)))}
}

// ExtractSlice extracts a 2D slice of the dose grid at a sample index along
// the given axis. Axial (z) slices are x by y, coronal (y) slices x by z and
// sagittal (x) slices z by y.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.Gray16, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= v.nx {
			return nil, fmt.Errorf("position %d exceeds x size %d", position, v.nx)
		}
		img = image.NewGray16(image.Rect(0, 0, v.nz, v.ny))
		for j := 0; j < v.ny; j++ {
			for k := 0; k < v.nz; k++ {
				img.SetGray16(k, j, v.gray(v.field.Value(position, j, k)))
			}
		}

	case "y", "Y":
		if position >= v.ny {
			return nil, fmt.Errorf("position %d exceeds y size %d", position, v.ny)
		}
		img = image.NewGray16(image.Rect(0, 0, v.nx, v.nz))
		for k := 0; k < v.nz; k++ {
			for i := 0; i < v.nx; i++ {
				img.SetGray16(i, k, v.gray(v.field.Value(i, position, k)))
			}
		}

	case "z", "Z":
		if position >= v.nz {
			return nil, fmt.Errorf("position %d exceeds z size %d", position, v.nz)
		}
		img = image.NewGray16(image.Rect(0, 0, v.nx, v.ny))
		for j := 0; j < v.ny; j++ {
			for i := 0; i < v.nx; i++ {
				img.SetGray16(i, j, v.gray(v.field.Value(i, j, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// OverlayStructure draws the outline of a structure's rings on an axial
// slice extracted at sample index k. Lattice cells inside a ring with a
// neighbour outside it are set to full intensity.
func (v *Viewer) OverlayStructure(img *image.Gray16, s *geometry.Structure, k int) error {
	if k < 0 || k >= v.nz {
		return fmt.Errorf("position %d exceeds z size %d", k, v.nz)
	}
	if img.Bounds().Dx() != v.nx || img.Bounds().Dy() != v.ny {
		return fmt.Errorf("image is %v, want an axial %dx%d slice", img.Bounds().Size(), v.nx, v.ny)
	}

	z := v.field.Z[k]
	lattice := v.field.Lattice()
	points := lattice.Points()
	for _, plane := range s.Planes() {
		if math.Abs(plane.Z-z) > v.field.SliceTolerance {
			continue
		}
		for _, c := range plane.Contours {
			mask, err := geometry.Rasterize(c, points, lattice.Rows(), lattice.Cols())
			if err != nil {
				return err
			}
			for j := 0; j < v.ny; j++ {
				for i := 0; i < v.nx; i++ {
					if mask.At(j, i) && onEdge(mask, j, i) {
						img.SetGray16(i, j, color.White)
					}
				}
			}
		}
	}
	return nil
}

// onEdge reports whether an occupied cell touches an empty cell or the
// border of the mask.
func onEdge(mask *geometry.Mask, row, col int) bool {
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		r, c := row+d[0], col+d[1]
		if r < 0 || c < 0 || r >= mask.Rows || c >= mask.Cols || !mask.At(r, c) {
			return true
		}
	}
	return false
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis.
// Axial slices carry the outlines of the given structures.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, structures ...*geometry.Structure) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.nx
	case "y", "Y":
		maxPos = v.ny
	case "z", "Z":
		maxPos = v.nz
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}
		if axis == "z" || axis == "Z" {
			for _, st := range structures {
				if err := v.OverlayStructure(img, st, pos); err != nil {
					return fmt.Errorf("structure %q: %w", st.Name, err)
				}
			}
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("dose_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
