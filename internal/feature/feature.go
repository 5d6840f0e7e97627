// Package feature turns records into renderable map features.
package feature

import (
	"math"
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/geometry"
	"github.com/sells-group/recordmap/internal/record"
)

// Kind distinguishes point markers from parsed geometry layers.
type Kind string

const (
	KindMarker   Kind = "marker"
	KindGeometry Kind = "geometry"
)

// originTolerance filters unset coordinates: records within this many degrees
// of (0, 0) on both axes are not rendered.
const originTolerance = 0.01

// Key identifies a feature. Source is empty for the main table and holds the
// auxiliary layer name otherwise.
type Key struct {
	Source string       `json:"source,omitempty"`
	Row    record.RowID `json:"row"`
}

// Feature is one renderable unit derived from one record.
type Feature struct {
	Key      Key
	Kind     Kind
	Position geometry.Point
	Geometry geom.T
	Style    map[string]any
	Name     string
	Popup    string
	Label    *Label
	Layer    string
	Points   []geometry.Point
}

// Builder builds features for one batch under one mapping.
type Builder struct {
	mapping   record.FieldMapping
	sanitizer *Sanitizer
	source    string
}

// NewBuilder creates a Builder for the main table.
func NewBuilder(m record.FieldMapping, s *Sanitizer) *Builder {
	if s == nil {
		s = NewSanitizer()
	}
	return &Builder{mapping: m, sanitizer: s}
}

// WithSource returns a copy of b that tags features with an auxiliary source.
func (b *Builder) WithSource(source string) *Builder {
	c := *b
	c.source = source
	return &c
}

// Build converts rec into a feature. The second result is false when the
// record is not eligible for rendering.
func (b *Builder) Build(rec record.Record) (*Feature, bool) {
	m := b.mapping
	f := &Feature{
		Key:   Key{Source: b.source, Row: rec.ID},
		Name:  b.sanitizer.Text(rec.String(m.Name)),
		Layer: rec.String(m.Layer),
	}

	if m.GeoJSONMode() {
		if !b.buildGeometry(rec, f) {
			return nil, false
		}
	} else if !b.buildMarker(rec, f) {
		return nil, false
	}

	f.Popup = b.popup(rec)
	f.Label = b.label(rec)
	return f, true
}

func (b *Builder) buildMarker(rec record.Record, f *Feature) bool {
	m := b.mapping
	if raw, ok := rec.Get(m.Longitude); ok {
		if s, isStr := raw.(string); isStr && strings.TrimSpace(s) == record.GeocodeInProgress {
			return false
		}
	}
	lng, okLng := rec.Float(m.Longitude)
	lat, okLat := rec.Float(m.Latitude)
	if !okLng || !okLat {
		return false
	}
	if math.Abs(lat) < originTolerance && math.Abs(lng) < originTolerance {
		return false
	}
	f.Kind = KindMarker
	f.Position = geometry.Point{Lng: lng, Lat: lat}
	f.Points = []geometry.Point{f.Position}
	return true
}

func (b *Builder) buildGeometry(rec record.Record, f *Feature) bool {
	m := b.mapping
	raw, ok := rec.Get(m.GeoJSON)
	if !ok || record.IsEmpty(raw) {
		return false
	}
	g, err := geometry.Parse(raw)
	if err != nil {
		zap.L().Warn("feature: skipping record with malformed geojson",
			zap.String("source", b.source),
			zap.Int64("row_id", int64(rec.ID)),
			zap.Error(err),
		)
		return false
	}
	f.Kind = KindGeometry
	f.Geometry = g
	f.Points = geometry.ExtractPoints(raw)

	f.Style = map[string]any{}
	if styleRaw, ok := rec.Get(m.Style); ok && !record.IsEmpty(styleRaw) {
		style, err := geometry.ParseObject(styleRaw)
		if err != nil {
			zap.L().Warn("feature: ignoring malformed style",
				zap.String("source", b.source),
				zap.Int64("row_id", int64(rec.ID)),
				zap.Error(err),
			)
		} else {
			f.Style = style
		}
	}
	return true
}

// popup joins the name and each non-empty popup column, each sanitized on its own.
func (b *Builder) popup(rec record.Record) string {
	var parts []string
	if name := rec.String(b.mapping.Name); strings.TrimSpace(name) != "" {
		parts = append(parts, "<strong>"+b.sanitizer.Text(name)+"</strong>")
	}
	for _, col := range b.mapping.Popup {
		v := strings.TrimSpace(rec.String(col))
		if v == "" {
			continue
		}
		parts = append(parts, b.sanitizer.Text(v))
	}
	return strings.Join(parts, "<br>")
}

func (b *Builder) label(rec record.Record) *Label {
	m := b.mapping
	text := strings.TrimSpace(rec.String(m.Label))
	if text == "" {
		return nil
	}
	l := &Label{Text: b.sanitizer.Text(text)}
	if raw, ok := rec.Get(m.LabelStyle); ok && !record.IsEmpty(raw) {
		style, err := ParseLabelStyle(raw)
		if err != nil {
			zap.L().Warn("feature: ignoring malformed label style",
				zap.Int64("row_id", int64(rec.ID)),
				zap.Error(err),
			)
		} else {
			l.Style = style
		}
	}
	return l
}
