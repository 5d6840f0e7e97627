// Package geometry parses GeoJSON payloads and derives the point sets used
// for camera fitting.
package geometry

import (
	"encoding/json"
	"reflect"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// Point is a WGS84 position.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// depthByType is the coordinate-array nesting depth of each geometry type.
var depthByType = map[string]int{
	"Point":           0,
	"LineString":      1,
	"MultiPoint":      1,
	"Polygon":         2,
	"MultiLineString": 2,
	"MultiPolygon":    3,
}

// ExtractPoints flattens a GeoJSON geometry into its positions. The payload may
// be a JSON string, raw bytes or an already-decoded object. Features and
// feature collections are unwrapped. Unknown types and malformed structures
// yield no points.
func ExtractPoints(payload any) (points []Point) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("geometry: extract points recovered", zap.Any("panic", r))
			points = nil
		}
	}()

	obj, ok := decodeObject(payload)
	if !ok {
		return nil
	}
	var out []Point
	if !collect(obj, &out) {
		return nil
	}
	return out
}

func decodeObject(payload any) (map[string]any, bool) {
	switch t := payload.(type) {
	case map[string]any:
		return t, true
	case string:
		return unmarshalObject([]byte(t))
	case []byte:
		return unmarshalObject(t)
	case json.RawMessage:
		return unmarshalObject(t)
	}
	return nil, false
}

func unmarshalObject(data []byte) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

// collect appends obj's positions to out. It returns false when the structure
// is malformed.
func collect(obj map[string]any, out *[]Point) bool {
	typ, _ := obj["type"].(string)
	switch typ {
	case "GeometryCollection":
		geoms, ok := obj["geometries"].([]any)
		if !ok {
			return false
		}
		for _, g := range geoms {
			sub, ok := g.(map[string]any)
			if !ok || !collect(sub, out) {
				return false
			}
		}
		return true
	case "Feature":
		g, ok := obj["geometry"].(map[string]any)
		if !ok {
			return obj["geometry"] == nil
		}
		return collect(g, out)
	case "FeatureCollection":
		features, ok := obj["features"].([]any)
		if !ok {
			return false
		}
		for _, f := range features {
			sub, ok := f.(map[string]any)
			if !ok || !collect(sub, out) {
				return false
			}
		}
		return true
	}

	depth, ok := depthByType[typ]
	if !ok {
		return true
	}
	return descend(obj["coordinates"], depth, out)
}

// descend walks a coordinate array of the given nesting depth. At depth 0 the
// value is a single [lng, lat, ...] position.
func descend(coords any, depth int, out *[]Point) bool {
	arr, ok := asSlice(coords)
	if !ok {
		return false
	}
	if depth == 0 {
		if len(arr) < 2 {
			return false
		}
		lng, ok := number(arr[0])
		if !ok {
			return false
		}
		lat, ok := number(arr[1])
		if !ok {
			return false
		}
		*out = append(*out, Point{Lng: lng, Lat: lat})
		return true
	}
	for _, child := range arr {
		if !descend(child, depth-1, out) {
			return false
		}
	}
	return true
}

// asSlice accepts decoded []any arrays and typed slices such as []float64 or
// [][]float64 built in Go.
func asSlice(v any) ([]any, bool) {
	if arr, ok := v.([]any); ok {
		return arr, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	arr := make([]any, rv.Len())
	for i := range arr {
		arr[i] = rv.Index(i).Interface()
	}
	return arr, true
}

// number accepts any numeric kind. Strings and booleans are not coordinates.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil, string, bool:
		return 0, false
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}
