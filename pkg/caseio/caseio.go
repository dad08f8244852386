// Package caseio reads calculation cases from JSON or YAML documents and
// builds the structures and dose field they describe.
//
// Every document is validated against a JSON schema before it is decoded,
// so YAML input is first converted to its JSON equivalent.
package caseio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dvhcalc/internal/models"
	"dvhcalc/pkg/dose"
	"dvhcalc/pkg/geometry"
)

// Format is the encoding of a case document.
type Format int

const (
	JSON Format = iota
	YAML
)

// FormatFromPath picks the format from the file extension; anything other
// than .yaml or .yml is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Load reads and validates the case document at path.
func Load(path string) (*models.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("caseio: reading case file: %w", err)
	}
	return Decode(data, FormatFromPath(path))
}

// Decode validates and decodes a case document.
func Decode(data []byte, format Format) (*models.Case, error) {
	if format == YAML {
		var err error
		if data, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	if err := Validate(data); err != nil {
		return nil, err
	}

	var c models.Case
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("caseio: decoding case: %w", err)
	}
	return &c, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("caseio: parsing YAML case: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("caseio: converting YAML case: %w", err)
	}
	return out, nil
}

// BuildField builds the dose field of a case in cGy.
func BuildField(d models.Dose) (*dose.Field, error) {
	if !d.IsDICOM() {
		f, err := dose.New(d.Values, d.X, d.Y, d.Z)
		if err != nil {
			return nil, fmt.Errorf("caseio: %w", err)
		}
		return f, nil
	}

	if len(d.ImagePositionPatient) != 3 || len(d.ImageOrientationPatient) != 6 || len(d.PixelSpacing) != 2 {
		return nil, fmt.Errorf("caseio: malformed DICOM geometry (position %d, orientation %d, spacing %d values)",
			len(d.ImagePositionPatient), len(d.ImageOrientationPatient), len(d.PixelSpacing))
	}
	if d.Frames > 0 && d.Frames != len(d.GridFrameOffsetVector) {
		return nil, fmt.Errorf("caseio: %d frames but %d frame offsets", d.Frames, len(d.GridFrameOffsetVector))
	}

	dd := dose.DICOMDose{
		Rows:                  d.Rows,
		Columns:               d.Columns,
		Pixels:                d.Pixels,
		DoseGridScaling:       d.DoseGridScaling,
		GridFrameOffsetVector: d.GridFrameOffsetVector,
	}
	copy(dd.ImagePositionPatient[:], d.ImagePositionPatient)
	copy(dd.ImageOrientationPatient[:], d.ImageOrientationPatient)
	copy(dd.PixelSpacing[:], d.PixelSpacing)

	f, err := dose.FromDICOM(dd)
	if err != nil {
		return nil, fmt.Errorf("caseio: %w", err)
	}
	return f, nil
}

// BuildStructure builds one structure from its rings.
func BuildStructure(m models.Structure) (*geometry.Structure, error) {
	s := geometry.NewStructure(m.ID, m.Name)
	s.EndCap = m.EndCap
	if m.Thickness > 0 {
		s.SetThickness(m.Thickness)
	}

	for i, ring := range m.Contours {
		points := make([]geometry.Point3D, len(ring))
		for j, p := range ring {
			points[j] = geometry.Point3D{X: p[0], Y: p[1], Z: p[2]}
		}
		if err := s.AddContour(points); err != nil {
			return nil, fmt.Errorf("caseio: structure %d ring %d: %w", m.ID, i, err)
		}
	}
	return s, nil
}

// BuildStructures builds every structure of a case in document order.
func BuildStructures(c *models.Case) ([]*geometry.Structure, error) {
	out := make([]*geometry.Structure, 0, len(c.Structures))
	seen := make(map[int]bool, len(c.Structures))
	for _, m := range c.Structures {
		if seen[m.ID] {
			return nil, fmt.Errorf("caseio: duplicate structure id %d", m.ID)
		}
		seen[m.ID] = true

		s, err := BuildStructure(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Build turns a decoded case into engine inputs.
func Build(c *models.Case) ([]*geometry.Structure, *dose.Field, error) {
	field, err := BuildField(c.Dose)
	if err != nil {
		return nil, nil, err
	}
	structures, err := BuildStructures(c)
	if err != nil {
		return nil, nil, err
	}
	return structures, field, nil
}
