package caseio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidCase is returned when a case document does not match caseSchema.
var ErrInvalidCase = errors.New("invalid case document")

const caseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["dose", "structures"],
  "properties": {
    "dose": {
      "type": "object",
      "oneOf": [
        {
          "required": ["rows", "columns", "dose_grid_scaling", "image_position_patient",
                       "image_orientation_patient", "pixel_spacing", "grid_frame_offset_vector", "pixels"],
          "not": {"anyOf": [{"required": ["x"]}, {"required": ["values"]}]}
        },
        {
          "required": ["x", "y", "z", "values"],
          "not": {"anyOf": [{"required": ["pixels"]}, {"required": ["rows"]}]}
        }
      ],
      "properties": {
        "rows": {"type": "integer", "minimum": 1},
        "columns": {"type": "integer", "minimum": 1},
        "frames": {"type": "integer", "minimum": 1},
        "dose_grid_scaling": {"type": "number", "exclusiveMinimum": 0},
        "image_position_patient": {"$ref": "#/definitions/vector3"},
        "image_orientation_patient": {
          "type": "array", "items": {"type": "number"}, "minItems": 6, "maxItems": 6
        },
        "pixel_spacing": {
          "type": "array", "items": {"type": "number", "exclusiveMinimum": 0}, "minItems": 2, "maxItems": 2
        },
        "grid_frame_offset_vector": {"$ref": "#/definitions/numbers"},
        "pixels": {"$ref": "#/definitions/numbers"},
        "x": {"$ref": "#/definitions/axis"},
        "y": {"$ref": "#/definitions/axis"},
        "z": {"$ref": "#/definitions/numbers"},
        "values": {"$ref": "#/definitions/numbers"}
      }
    },
    "structures": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "contours"],
        "properties": {
          "id": {"type": "integer"},
          "name": {"type": "string", "minLength": 1},
          "thickness": {"type": "number", "minimum": 0},
          "end_cap": {"type": "boolean"},
          "contours": {
            "type": "array",
            "items": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/vector3"}}
          }
        }
      }
    }
  },
  "definitions": {
    "numbers": {"type": "array", "items": {"type": "number"}, "minItems": 1},
    "axis": {"type": "array", "items": {"type": "number"}, "minItems": 2},
    "vector3": {"type": "array", "items": {"type": "number"}, "minItems": 3, "maxItems": 3}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(caseSchema)

// Validate checks a JSON case document against the case schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("caseio: validation error: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("caseio: %w: %s", ErrInvalidCase, strings.Join(msgs, "; "))
	}
	return nil
}
