package annojson

import (
	"encoding/json"
	"fmt"
)

// DecodeSidecar parses a .anno sidecar into ledger-shaped data: the tag list
// and a flat field map with image dimensions and the object list folded back
// in. It is the inverse of Encode and feeds library sync imports.
func DecodeSidecar(data []byte) (tags []string, fields map[string]any, err error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse sidecar: %w", err)
	}

	fields = make(map[string]any, len(doc.Fields)+4)
	for k, v := range doc.Fields {
		fields[k] = v
	}
	if len(doc.ImageShape) == 3 {
		fields["height"] = float64(doc.ImageShape[0])
		fields["width"] = float64(doc.ImageShape[1])
		fields["channels"] = float64(doc.ImageShape[2])
	}
	if len(doc.Objects) > 0 {
		objects := make([]any, 0, len(doc.Objects))
		for _, obj := range doc.Objects {
			objects = append(objects, map[string]any{
				"name":       obj.Name,
				"bbox":       []any{obj.BBox[0], obj.BBox[1], obj.BBox[2], obj.BBox[3]},
				"truncated":  float64(obj.Truncated),
				"difficult":  float64(obj.Difficult),
				"confidence": obj.Confidence,
			})
		}
		fields["objects"] = objects
	}
	return doc.SampleTags, fields, nil
}
