package geometry

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ErrEmptyPayload is returned when there is nothing to parse.
var ErrEmptyPayload = eris.New("geometry: empty payload")

// Raw normalises a JSON-ish payload (string, bytes or decoded value) to bytes.
func Raw(payload any) ([]byte, error) {
	switch t := payload.(type) {
	case nil:
		return nil, ErrEmptyPayload
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, ErrEmptyPayload
		}
		return []byte(t), nil
	case []byte:
		if len(t) == 0 {
			return nil, ErrEmptyPayload
		}
		return t, nil
	case json.RawMessage:
		if len(t) == 0 {
			return nil, ErrEmptyPayload
		}
		return t, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode payload")
	}
	return data, nil
}

// Parse decodes a GeoJSON geometry, Feature or FeatureCollection. Feature
// collections become a geometry collection of their non-null geometries.
func Parse(payload any) (geom.T, error) {
	data, err := Raw(payload)
	if err != nil {
		return nil, err
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrap(err, "geometry: decode geojson")
	}

	switch head.Type {
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrap(err, "geometry: decode feature")
		}
		if f.Geometry == nil {
			return nil, eris.New("geometry: feature has no geometry")
		}
		return f.Geometry, nil
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrap(err, "geometry: decode feature collection")
		}
		gc := geom.NewGeometryCollection()
		for _, f := range fc.Features {
			if f == nil || f.Geometry == nil {
				continue
			}
			if err := gc.Push(f.Geometry); err != nil {
				return nil, eris.Wrap(err, "geometry: collect features")
			}
		}
		return gc, nil
	}

	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrapf(err, "geometry: decode %q", head.Type)
	}
	if g == nil {
		return nil, ErrEmptyPayload
	}
	return g, nil
}

// ParseObject decodes a JSON object payload such as a style. An empty payload
// yields an empty map.
func ParseObject(payload any) (map[string]any, error) {
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	data, err := Raw(payload)
	if eris.Is(err, ErrEmptyPayload) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "geometry: decode object")
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// Encode renders g as a GeoJSON geometry object.
func Encode(g geom.T) (json.RawMessage, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode geojson")
	}
	return data, nil
}
