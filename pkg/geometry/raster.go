package geometry

import "fmt"

// Mask is a boolean occupancy grid aligned with a dose sampling lattice.
// Data is row-major: row r holds the samples at the r-th y position.
type Mask struct {
	Rows, Cols int
	Data       []bool
}

// NewMask allocates an empty rows×cols mask.
func NewMask(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At returns the occupancy of cell (row, col).
func (m *Mask) At(row, col int) bool {
	return m.Data[row*m.Cols+col]
}

// Count returns the number of occupied cells.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// All reports whether every cell is occupied.
func (m *Mask) All() bool {
	for _, v := range m.Data {
		if !v {
			return false
		}
	}
	return true
}

// Rasterize converts a contour into an occupancy mask over the flattened
// sampling points of a rows×cols grid. Degenerate contours give an empty mask.
func Rasterize(c Contour, points []Point2D, rows, cols int) (*Mask, error) {
	if rows < 0 || cols < 0 || len(points) != rows*cols {
		return nil, fmt.Errorf("geometry: %d grid points do not form a %dx%d grid", len(points), rows, cols)
	}
	if c.Degenerate() {
		return NewMask(rows, cols), nil
	}
	return &Mask{Rows: rows, Cols: cols, Data: BatchContains(c.Points, points)}, nil
}
