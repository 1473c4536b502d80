package adapter

// Object is one annotated region parsed from a sample's "objects" field.
// Field values arrive JSON-decoded, so numbers are float64 and the object
// list is []any of map[string]any.
type Object struct {
	Name       string
	BBox       [4]float64 // xmin, ymin, xmax, ymax in pixels
	Truncated  int
	Difficult  int
	Confidence float64
}

// ParseObjects extracts the annotated object list from a sample's fields.
// Samples without an objects field yield an empty list.
func ParseObjects(fields map[string]any) []Object {
	raw, ok := fields["objects"].([]any)
	if !ok {
		return nil
	}
	objects := make([]Object, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		obj := Object{Confidence: -1}
		if name, ok := m["name"].(string); ok {
			obj.Name = name
		}
		if bbox, ok := m["bbox"].([]any); ok && len(bbox) == 4 {
			valid := true
			for i, v := range bbox {
				f, ok := v.(float64)
				if !ok {
					valid = false
					break
				}
				obj.BBox[i] = f
			}
			if !valid {
				continue
			}
		}
		obj.Truncated = intField(m, "truncated")
		obj.Difficult = intField(m, "difficult")
		if conf, ok := m["confidence"].(float64); ok {
			obj.Confidence = conf
		}
		objects = append(objects, obj)
	}
	return objects
}

// ImageShape extracts pixel dimensions from a sample's fields.
func ImageShape(fields map[string]any) (height, width, channels int, ok bool) {
	height = intField(fields, "height")
	width = intField(fields, "width")
	channels = intField(fields, "channels")
	if channels == 0 {
		channels = 3
	}
	return height, width, channels, height > 0 && width > 0
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}
