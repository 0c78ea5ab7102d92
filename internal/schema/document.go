package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/monishk/shardsearch/pkg/geo"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// Document is a single ingested record: the raw JSON object plus the
// engine-assigned identity fields. Values is populated by Normalize with
// concrete Go-typed field values (int32, int64, float64, bool, string,
// geo.Point, or a slice of one of those) — never float64 stand-ins for
// int64, since that would lose precision on the boundary values spec.md §8
// tests against.
type Document struct {
	ID     string
	SeqID  uint32
	Raw    map[string]any
	Values map[string]any
}

// Decode parses raw JSON into a map using json.Number for numeric literals,
// so that Normalize can distinguish int32/int64/float without a lossy
// float64 round trip. Callers ingesting documents must use this instead of
// a plain json.Unmarshal into map[string]any.
func Decode(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, apperrors.BadRequest("malformed document JSON: %v", err)
	}
	return out, nil
}

// Normalize validates raw against s (strict typing, homogeneous
// non-nested arrays, optional-field handling, and index_all_fields
// auto-registration) and returns the typed field values plus the
// document's string id.
func Normalize(s *Schema, raw map[string]any) (id string, values map[string]any, err error) {
	values = make(map[string]any, len(raw))

	for _, f := range s.Fields {
		v, present := raw[f.Name]
		if !present {
			if f.Optional {
				continue
			}
			return "", nil, apperrors.BadRequest("field `%s` is required", f.Name)
		}
		typed, terr := coerce(f, v)
		if terr != nil {
			return "", nil, terr
		}
		values[f.Name] = typed
	}

	if s.IndexAllFields {
		for k, v := range raw {
			if _, known := s.Field(k); known || k == "id" {
				continue
			}
			ft, arr, ok := inferType(v)
			if !ok {
				continue
			}
			f := s.AddDynamicField(k, ft, arr)
			typed, terr := coerce(f, v)
			if terr != nil {
				continue
			}
			values[k] = typed
		}
	}

	rawID, hasID := raw["id"]
	if hasID {
		s, ok := rawID.(string)
		if !ok {
			return "", nil, apperrors.BadRequest("field `id` must be a string")
		}
		id = s
	}
	return id, values, nil
}

func coerce(f Field, v any) (any, error) {
	if v == nil {
		if f.Optional {
			return nil, nil
		}
		return nil, apperrors.BadRequest("field `%s` must not be null", f.Name)
	}
	if f.Array {
		arr, ok := v.([]any)
		if !ok {
			return nil, apperrors.BadRequest("field `%s` must be an array", f.Name)
		}
		out := make([]any, 0, len(arr))
		for i, elem := range arr {
			scalar := f
			scalar.Array = false
			c, err := coerceScalar(scalar, elem)
			if err != nil {
				return nil, apperrors.BadRequest("field `%s[%d]`: %v", f.Name, i, err)
			}
			out = append(out, c)
		}
		return out, nil
	}
	return coerceScalar(f, v)
}

func coerceScalar(f Field, v any) (any, error) {
	switch f.Type {
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, apperrors.BadRequest("field `%s` must be a string", f.Name)
		}
		return s, nil
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, apperrors.BadRequest("field `%s` must be a boolean", f.Name)
		}
		return b, nil
	case Int32:
		n, ok := v.(json.Number)
		if !ok {
			return nil, apperrors.BadRequest("field `%s` must be an integer", f.Name)
		}
		i, err := n.Int64()
		if err != nil || i < -2147483648 || i > 2147483647 {
			return nil, apperrors.BadRequest("field `%s` must fit in int32", f.Name)
		}
		return int32(i), nil
	case Int64:
		n, ok := v.(json.Number)
		if !ok {
			return nil, apperrors.BadRequest("field `%s` must be an integer", f.Name)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, apperrors.BadRequest("field `%s` must be an integer", f.Name)
		}
		return i, nil
	case Float:
		n, ok := v.(json.Number)
		if !ok {
			return nil, apperrors.BadRequest("field `%s` must be a number", f.Name)
		}
		fl, err := n.Float64()
		if err != nil {
			return nil, apperrors.BadRequest("field `%s` must be a number", f.Name)
		}
		return fl, nil
	case Geopoint:
		arr, ok := v.([]any)
		if !ok || len(arr) != 2 {
			return nil, apperrors.BadRequest("field `%s` must be a [lat, lng] pair", f.Name)
		}
		lat, ok1 := arr[0].(json.Number)
		lng, ok2 := arr[1].(json.Number)
		if !ok1 || !ok2 {
			return nil, apperrors.BadRequest("field `%s` must be a [lat, lng] pair of numbers", f.Name)
		}
		latF, err1 := lat.Float64()
		lngF, err2 := lng.Float64()
		if err1 != nil || err2 != nil {
			return nil, apperrors.BadRequest("field `%s` must be a [lat, lng] pair of numbers", f.Name)
		}
		return geo.Point{Lat: latF, Lng: lngF}, nil
	default:
		return nil, fmt.Errorf("unhandled field type %v", f.Type)
	}
}

// inferType guesses a FieldType for an index_all_fields dynamic field from
// its decoded JSON shape. Objects and null are not indexable and return
// ok=false.
func inferType(v any) (FieldType, bool, bool) {
	switch t := v.(type) {
	case string:
		return String, false, true
	case bool:
		return Bool, false, true
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return Int64, false, true
		}
		return Float, false, true
	case []any:
		if len(t) == 0 {
			return String, false, false
		}
		ft, _, ok := inferType(t[0])
		return ft, true, ok
	default:
		return String, false, false
	}
}
