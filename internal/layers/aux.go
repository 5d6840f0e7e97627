package layers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/record"
)

// AuxColumns maps roles to columns of an auxiliary table.
type AuxColumns struct {
	GeoJSON string `json:"GeoJSON"`
	Name    string `json:"Name,omitempty"`
	Style   string `json:"Style,omitempty"`
}

// AuxConfig is one entry of the additionalLayers option.
type AuxConfig struct {
	Table       string     `json:"table"`
	Columns     AuxColumns `json:"columns"`
	Layer       string     `json:"layer,omitempty"`
	Order       *float64   `json:"order,omitempty"`
	Interactive *bool      `json:"interactive,omitempty"`
}

// Name is the overlay name: the configured layer, or the table id.
func (c AuxConfig) Name() string {
	if c.Layer != "" {
		return c.Layer
	}
	return c.Table
}

// IsInteractive reports whether features respond to clicks. Defaults to true.
func (c AuxConfig) IsInteractive() bool {
	return c.Interactive == nil || *c.Interactive
}

// Mapping is the FieldMapping used to build the table's features.
func (c AuxConfig) Mapping() record.FieldMapping {
	return record.FieldMapping{
		GeoJSON: c.Columns.GeoJSON,
		Name:    c.Columns.Name,
		Style:   c.Columns.Style,
	}
}

// ParseAuxConfigs decodes the additionalLayers option. Entries that do not
// decode, or lack a table or GeoJSON column, are logged and skipped. An empty
// option yields no entries.
func ParseAuxConfigs(raw string) ([]AuxConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, eris.Wrap(err, "layers: decode additional layers")
	}
	out := make([]AuxConfig, 0, len(entries))
	for i, entry := range entries {
		var c AuxConfig
		if err := json.Unmarshal(entry, &c); err != nil {
			zap.L().Warn("layers: skipping malformed additional layer", zap.Int("index", i), zap.Error(err))
			continue
		}
		if c.Table == "" || c.Columns.GeoJSON == "" {
			zap.L().Warn("layers: skipping additional layer without table or GeoJSON column", zap.Int("index", i))
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// UniqueNames renames entries whose overlay name repeats an earlier entry or
// one of reserved, appending " (2)", " (3)" and so on. Overlay names key the
// canvas groups and feature sources, so they must not collide.
func UniqueNames(cfgs []AuxConfig, reserved []string) []AuxConfig {
	used := make(map[string]bool, len(cfgs)+len(reserved))
	for _, name := range reserved {
		used[name] = true
	}
	out := make([]AuxConfig, len(cfgs))
	for i, c := range cfgs {
		name := c.Name()
		if used[name] {
			base := name
			for n := 2; used[name]; n++ {
				name = fmt.Sprintf("%s (%d)", base, n)
			}
			zap.L().Warn("layers: renamed duplicate additional layer",
				zap.String("layer", base), zap.String("renamed", name))
			c.Layer = name
		}
		used[name] = true
		out[i] = c
	}
	return out
}

// BuildAux pivots a fetched table into a group. Rows that fail to build are
// skipped by the feature builder. Features of non-interactive groups carry no
// popup.
func BuildAux(c AuxConfig, cols record.Columns, s *feature.Sanitizer) *Group {
	b := feature.NewBuilder(c.Mapping(), s).WithSource(c.Name())
	g := &Group{Name: c.Name(), Order: c.Order, Interactive: c.IsInteractive(), Aux: true}
	for _, rec := range cols.Pivot() {
		if f, ok := b.Build(rec); ok {
			f.Layer = g.Name
			if !g.Interactive {
				f.Popup = ""
			}
			g.Features = append(g.Features, f)
		}
	}
	return g
}
