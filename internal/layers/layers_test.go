package layers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/record"
)

func geoFeature(row record.RowID, layer string) *feature.Feature {
	return &feature.Feature{Key: feature.Key{Row: row}, Kind: feature.KindGeometry, Layer: layer}
}

func names(groups []*Group) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Name
	}
	return out
}

func TestCompose_ByLayer(t *testing.T) {
	m := record.FieldMapping{GeoJSON: "geo", Layer: "Layer"}
	groups := Compose([]*feature.Feature{
		geoFeature(1, "Parks"),
		geoFeature(2, "Roads"),
		geoFeature(3, "Parks"),
		geoFeature(4, ""),
	}, m)
	assert.Equal(t, []string{"Parks", "Roads", DefaultGroup}, names(groups))
	assert.Len(t, groups[0].Features, 2)
}

func TestCompose_DefaultGroup(t *testing.T) {
	groups := Compose([]*feature.Feature{geoFeature(1, "Parks"), geoFeature(2, "Roads")},
		record.FieldMapping{GeoJSON: "geo"})
	require.Len(t, groups, 1)
	assert.Equal(t, DefaultGroup, groups[0].Name)

	groups = Compose([]*feature.Feature{{Key: feature.Key{Row: 1}, Kind: feature.KindMarker, Layer: "x"}},
		record.FieldMapping{Name: "n", Longitude: "x", Latitude: "y", Layer: "Layer"})
	assert.Equal(t, []string{DefaultGroup}, names(groups))
}

func TestParseAuxConfigs_OrderScenario(t *testing.T) {
	cfgs, err := ParseAuxConfigs(`[{"table":"T","columns":{"GeoJSON":"geo"},"order":2},{"table":"U","columns":{"GeoJSON":"geo"},"order":1}]`)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	var groups []*Group
	for _, c := range cfgs {
		groups = append(groups, BuildAux(c, record.Columns{}, nil))
	}
	SortAux(groups)
	assert.Equal(t, []string{"U", "T"}, names(groups))
}

func TestSortAux_MissingOrderLast(t *testing.T) {
	one, three := 1.0, 3.0
	groups := []*Group{{Name: "a"}, {Name: "b", Order: &three}, {Name: "c"}, {Name: "d", Order: &one}}
	SortAux(groups)
	assert.Equal(t, []string{"d", "b", "a", "c"}, names(groups))
}

func TestParseAuxConfigs_SkipsMalformedEntries(t *testing.T) {
	cfgs, err := ParseAuxConfigs(`[
		{"table":"A","columns":{"GeoJSON":"g"},"layer":"Zones","interactive":false},
		{"table":5},
		{"table":"B","columns":{}},
		{"columns":{"GeoJSON":"g"}}
	]`)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "Zones", cfgs[0].Name())
	assert.False(t, cfgs[0].IsInteractive())

	cfgs, err = ParseAuxConfigs("  ")
	assert.NoError(t, err)
	assert.Empty(t, cfgs)

	_, err = ParseAuxConfigs(`{"table":"A"}`)
	assert.Error(t, err)
}

func TestBuildAux(t *testing.T) {
	c := AuxConfig{Table: "T", Columns: AuxColumns{GeoJSON: "geo", Name: "label"}}
	cols := record.Columns{
		"id":    {10, 11, 12},
		"geo":   {`{"type":"Point","coordinates":[1,2]}`, "{broken", `{"type":"Point","coordinates":[3,4]}`},
		"label": {"one", "two", "three"},
	}
	g := BuildAux(c, cols, nil)
	assert.True(t, g.Aux)
	assert.True(t, g.Interactive)
	require.Len(t, g.Features, 2)
	assert.Equal(t, feature.Key{Source: "T", Row: 10}, g.Features[0].Key)
	assert.Equal(t, "three", g.Features[1].Name)
	assert.False(t, g.Bounds().IsEmpty())
}

type toggles map[string]bool

func (t toggles) SetGroupVisible(name string, visible bool) bool {
	t[name] = visible
	return true
}

func TestBuildControl_Shapes(t *testing.T) {
	one := []*Group{{Name: "Default"}}
	assert.Equal(t, ControlNone, BuildControl(one, nil, false, "", nil).Kind)

	var buf bytes.Buffer
	require.NoError(t, BuildControl(one, nil, false, "", nil).Render(&buf))
	assert.Empty(t, buf.String())

	flat := BuildControl(one, []*Group{{Name: "T"}}, false, "", nil)
	assert.Equal(t, ControlFlat, flat.Kind)
	assert.Len(t, flat.Entries, 2)

	main := []*Group{{Name: "Parks"}, {Name: "Roads"}}
	grouped := BuildControl(main, []*Group{{Name: "T"}}, true, "Category", nil)
	assert.Equal(t, ControlGrouped, grouped.Kind)
	require.NotNil(t, grouped.Parent)
	assert.Equal(t, "Category", grouped.Parent.Title)
	assert.Len(t, grouped.Parent.Entries, 2)
	assert.Len(t, grouped.Entries, 1)
	assert.Equal(t, []string{"Parks", "Roads", "T"}, grouped.Overlays())

	assert.Equal(t, ControlFlat, BuildControl(main, nil, false, "", nil).Kind)
	assert.Equal(t, ControlFlat, BuildControl(one, []*Group{{Name: "T"}}, true, "x", nil).Kind)
}

func TestControl_ToggleTriState(t *testing.T) {
	applied := toggles{}
	c := BuildControl([]*Group{{Name: "Parks"}, {Name: "Roads"}}, []*Group{{Name: "T"}}, true, "Category", applied)
	assert.Equal(t, CheckAll, c.Parent.State())

	assert.True(t, c.Toggle("Roads", false))
	assert.Equal(t, CheckSome, c.Parent.State())
	assert.Equal(t, false, applied["Roads"])

	assert.True(t, c.Toggle("Category", false))
	assert.Equal(t, CheckNone, c.Parent.State())
	assert.Equal(t, false, applied["Parks"])

	assert.True(t, c.Toggle("Category", true))
	assert.Equal(t, CheckAll, c.Parent.State())

	assert.True(t, c.Toggle("T", false))
	assert.False(t, c.Entries[0].Visible)
	assert.False(t, c.Toggle("nope", true))
}

func TestControl_Render(t *testing.T) {
	c := BuildControl([]*Group{{Name: "Parks"}, {Name: "<Roads>"}}, []*Group{{Name: "T"}}, true, "Category", nil)
	c.Toggle("Parks", false)

	var buf bytes.Buffer
	require.NoError(t, c.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, `class="layer-control layer-control-grouped"`)
	assert.Contains(t, out, `data-layer-group="Category" data-indeterminate="true"`)
	assert.Contains(t, out, `data-layer="Parks">`)
	assert.Contains(t, out, `data-layer="T" checked>`)
	assert.Contains(t, out, "&lt;Roads&gt;")
	assert.NotContains(t, out, "<Roads>")
}

func TestUniqueNames(t *testing.T) {
	cfgs, err := ParseAuxConfigs(`[
		{"table":"T","columns":{"GeoJSON":"g"}},
		{"table":"T","columns":{"GeoJSON":"g","Style":"s"}},
		{"table":"U","columns":{"GeoJSON":"g"},"layer":"Default"},
		{"table":"V","columns":{"GeoJSON":"g"},"layer":"T"}
	]`)
	require.NoError(t, err)

	got := UniqueNames(cfgs, []string{DefaultGroup})
	require.Len(t, got, 4)
	assert.Equal(t, []string{"T", "T (2)", "Default (2)", "T (3)"},
		[]string{got[0].Name(), got[1].Name(), got[2].Name(), got[3].Name()})
	assert.Equal(t, "T", got[1].Table)
	assert.Equal(t, "s", got[1].Columns.Style)

	g := BuildAux(got[1], record.Columns{"id": {1}, "g": {`{"type":"Point","coordinates":[1,2]}`}}, nil)
	require.Len(t, g.Features, 1)
	assert.Equal(t, feature.Key{Source: "T (2)", Row: 1}, g.Features[0].Key)
}
