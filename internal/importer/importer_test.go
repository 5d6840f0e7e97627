package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/recordmap/internal/geometry"
	"github.com/sells-group/recordmap/internal/host"
)

func newTestHost(t *testing.T) *host.SQLite {
	t.Helper()
	h, err := host.NewSQLite(filepath.Join(t.TempDir(), "test.db"), "Records")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() }) //nolint:errcheck
	require.NoError(t, h.Migrate(context.Background()))
	return h
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFile_CSV(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	path := writeFile(t, "places.csv", "\ufeffName,Longitude,Latitude,id\nA,10.5,20,7\n,,,\nB,,,8\n")

	res, err := File(ctx, h, "Records", path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []string{"Name", "Longitude", "Latitude", "source_id"}, res.Columns)

	recs, err := h.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "A", recs[0].String("Name"))
	lng, ok := recs[0].Float("Longitude")
	require.True(t, ok)
	assert.InDelta(t, 10.5, lng, 1e-9)
	assert.Equal(t, "7", recs[0].String("source_id"))
	assert.False(t, recs[1].Has("Longitude"))
}

func TestFile_TSVAndAppend(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	_, err := File(ctx, h, "Records", writeFile(t, "a.tsv", "Name\tAddress\nA\t1 Main St\n"))
	require.NoError(t, err)
	_, err = File(ctx, h, "Records", writeFile(t, "b.csv", "Name,Layer\nB,Parks\n"))
	require.NoError(t, err)

	recs, err := h.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1 Main St", recs[0].String("Address"))
	assert.Equal(t, "Parks", recs[1].String("Layer"))
}

func TestFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Places")
	require.NoError(t, err)
	for _, rowData := range [][]string{{"Name", "Address"}, {"Depot", "2 Elm St"}, {"Yard", ""}} {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "places.xlsx")
	require.NoError(t, f.Save(path))

	h := newTestHost(t)
	ctx := context.Background()
	res, err := File(ctx, h, "Records", path, WithSheet("Places"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)

	recs, err := h.Records(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2 Elm St", recs[0].String("Address"))
	assert.False(t, recs[1].Has("Address"))

	_, err = File(ctx, h, "Records", path, WithSheet("Missing"))
	assert.Error(t, err)
}

func TestFile_Shapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 20)}))

	square := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}})
	row := w.Write((*shp.Polygon)(square))
	require.NoError(t, w.WriteAttribute(int(row), 0, "North"))
	w.Close()

	h := newTestHost(t)
	ctx := context.Background()
	res, err := File(ctx, h, "Zones", path, WithGeoJSONColumn("geo"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
	assert.Equal(t, []string{"NAME", "geo"}, res.Columns)

	cols, err := h.FetchTable(ctx, "Zones")
	require.NoError(t, err)
	require.Len(t, cols["geo"], 1)
	assert.Equal(t, "North", cols["NAME"][0])

	g, err := geometry.Parse(cols["geo"][0])
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestFile_UnsupportedFormat(t *testing.T) {
	_, err := File(context.Background(), newTestHost(t), "Records", writeFile(t, "x.json", "[]"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFile_EmptyCSV(t *testing.T) {
	_, err := File(context.Background(), newTestHost(t), "Records", writeFile(t, "x.csv", ""))
	assert.Error(t, err)
}

func TestHeaderColumns(t *testing.T) {
	got := headerColumns([]string{" Name ", "Name", "", `Say "hi"`, "ID", "Name"})
	assert.Equal(t, []string{"Name", "Name_2", "column_3", "Say hi", "source_id", "Name_3"}, got)
	for _, c := range got {
		assert.True(t, host.ValidIdentifier(c), c)
	}
}

func TestShapeGeometry(t *testing.T) {
	assert.Nil(t, shapeGeometry(&shp.Null{}))
	assert.IsType(t, &geom.Point{}, shapeGeometry(&shp.Point{X: 1, Y: 2}))

	line := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 1}}, {{X: 5, Y: 5}}})
	g := shapeGeometry(line)
	require.IsType(t, &geom.MultiLineString{}, g)
	assert.Equal(t, 1, g.(*geom.MultiLineString).NumLineStrings())
}
