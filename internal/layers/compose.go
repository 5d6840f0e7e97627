// Package layers groups features into toggleable overlays and builds the
// overlay control.
package layers

import (
	"sort"
	"strings"

	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/geometry"
	"github.com/sells-group/recordmap/internal/record"
)

// DefaultGroup names the main group when no Layer column is mapped.
const DefaultGroup = "Default"

// Group is a named, independently toggleable collection of features.
type Group struct {
	Name        string
	Features    []*feature.Feature
	Order       *float64
	Interactive bool
	Aux         bool
}

// Bounds accumulates the points of every feature in the group.
func (g *Group) Bounds() *geometry.Bounds {
	b := geometry.NewBounds()
	for _, f := range g.Features {
		b.Extend(f.Points...)
	}
	return b
}

// Compose buckets main-table features. In GeoJSON mode with a Layer column
// the bucket is the Layer value; otherwise every feature lands in
// DefaultGroup. Groups keep the order of first appearance.
func Compose(features []*feature.Feature, m record.FieldMapping) []*Group {
	byLayer := m.GeoJSONMode() && m.Layer != ""
	index := make(map[string]*Group)
	var groups []*Group
	for _, f := range features {
		name := DefaultGroup
		if byLayer {
			if l := strings.TrimSpace(f.Layer); l != "" {
				name = l
			}
		}
		g, ok := index[name]
		if !ok {
			g = &Group{Name: name, Interactive: true}
			index[name] = g
			groups = append(groups, g)
		}
		g.Features = append(g.Features, f)
	}
	return groups
}

// SortAux orders auxiliary groups ascending by Order, so lower orders draw
// first and sit visually behind. Groups without an order go last; ties keep
// configuration order.
func SortAux(groups []*Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Order, groups[j].Order
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
}

// BoundsOf merges the bounds of several group lists.
func BoundsOf(lists ...[]*Group) *geometry.Bounds {
	b := geometry.NewBounds()
	for _, groups := range lists {
		for _, g := range groups {
			b.Merge(g.Bounds())
		}
	}
	return b
}
