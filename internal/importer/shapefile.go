package importer

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/geometry"
)

// readShapefile reads the attribute table of a shapefile and adds each
// shape as a GeoJSON geometry in geoColumn. Shapes that cannot be
// converted are skipped with their row.
func readShapefile(path, geoColumn string) (*table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		header = append(header, strings.TrimRight(f.String(), "\x00"))
	}
	header = append(header, geoColumn)
	t := &table{columns: headerColumns(header)}

	for reader.Next() {
		n, shape := reader.Shape()

		g := shapeGeometry(shape)
		if g == nil {
			t.skipped++
			continue
		}
		raw, err := geometry.Encode(g)
		if err != nil {
			zap.L().Debug("shapefile: skipping unencodable shape", zap.Int("record", n), zap.Error(err))
			t.skipped++
			continue
		}

		row := make([]any, 0, len(fields)+1)
		for i := range fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val == "" {
				row = append(row, nil)
			} else {
				row = append(row, val)
			}
		}
		row = append(row, string(raw))
		t.rows = append(t.rows, row)
	}

	if t.skipped > 0 {
		zap.L().Debug("shapefile: skipped records", zap.String("path", path), zap.Int("skipped", t.skipped))
	}
	return t, nil
}

// shapeGeometry converts a shape to a go-geom geometry. It returns nil for
// null, empty or unsupported shapes.
func shapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y})
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, flatPoints(s.Points))
	case *shp.PolyLine:
		return multiLineString(s.Parts, s.Points)
	case *shp.Polygon:
		return multiPolygon(s.Parts, s.Points)
	}
	return nil
}

// partRanges splits points into the [start, end) ranges named by parts.
func partRanges(parts []int32, n int) [][2]int {
	out := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < 0 || int(start) >= end || end > n {
			continue
		}
		out = append(out, [2]int{int(start), end})
	}
	return out
}

func multiLineString(parts []int32, points []shp.Point) geom.T {
	mls := geom.NewMultiLineString(geom.XY)
	for _, r := range partRanges(parts, len(points)) {
		if r[1]-r[0] < 2 {
			continue
		}
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(points[r[0]:r[1]]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("shapefile: skipping malformed linestring part", zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func multiPolygon(parts []int32, points []shp.Point) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, r := range partRanges(parts, len(points)) {
		if r[1]-r[0] < 4 {
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flatPoints(points[r[0]:r[1]]))); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon ring", zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon part", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
