package session

import (
	"bytes"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/canvas"
	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/layers"
	"github.com/sells-group/recordmap/internal/record"
)

// GroupInfo summarises one overlay group.
type GroupInfo struct {
	Name        string   `json:"name"`
	Aux         bool     `json:"aux"`
	Interactive bool     `json:"interactive"`
	Order       *float64 `json:"order,omitempty"`
	Features    int      `json:"features"`
}

// Snapshot is the exported state of the map.
type Snapshot struct {
	ID          string                     `json:"id"`
	Generation  uint64                     `json:"generation"`
	Options     Options                    `json:"options"`
	Attribution string                     `json:"attribution,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Warnings    []string                   `json:"warnings,omitempty"`
	Selected    *record.RowID              `json:"selected,omitempty"`
	Popup       *feature.Key               `json:"popup,omitempty"`
	View        *canvas.View               `json:"view,omitempty"`
	Groups      []GroupInfo                `json:"groups"`
	Control     *layers.Control            `json:"control,omitempty"`
	ControlHTML string                     `json:"controlHtml,omitempty"`
	Features    *geojson.FeatureCollection `json:"features,omitempty"`
	Clusters    []canvas.Cluster           `json:"clusters,omitempty"`
	Scanning    bool                       `json:"scanning"`
}

// exporter is implemented by canvases that can describe their contents.
type exporter interface {
	FeatureCollection() *geojson.FeatureCollection
	Clusters(zoom int) []canvas.Cluster
	Popup() (feature.Key, bool)
}

// Snapshot captures the current map.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Generation:  s.generation,
		Options:     s.options,
		Attribution: s.deps.Sanitizer.Body(s.options.MapCopyright),
		Warnings:    append([]string(nil), s.warnings...),
		Groups:      []GroupInfo{},
		Control:     s.control,
		Scanning:    s.deps.Scanner != nil && s.deps.Scanner.Running(),
	}
	if s.renderErr != nil {
		snap.Error = s.renderErr.Message
	}
	if id, ok := s.selection.Selected(); ok {
		snap.Selected = &id
	}
	for _, list := range [][]*layers.Group{s.main, s.aux} {
		for _, g := range list {
			snap.Groups = append(snap.Groups, GroupInfo{
				Name:        g.Name,
				Aux:         g.Aux,
				Interactive: g.Interactive,
				Order:       g.Order,
				Features:    len(g.Features),
			})
		}
	}
	if s.control != nil {
		var buf bytes.Buffer
		if err := s.control.Render(&buf); err != nil {
			zap.L().Warn("session: control render failed", zap.Error(err))
		}
		snap.ControlHTML = buf.String()
	}
	if s.canvas != nil {
		v := s.canvas.View()
		snap.View = &v
		if ex, ok := s.canvas.(exporter); ok {
			snap.Features = ex.FeatureCollection()
			snap.Clusters = ex.Clusters(v.Zoom)
			if key, ok := ex.Popup(); ok {
				snap.Popup = &key
			}
		}
	}
	return snap
}
