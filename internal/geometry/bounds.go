package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
)

// TileSize is the pixel width of one web-mercator tile at zoom 0.
const TileSize = 256

// Bounds accumulates positions for camera fitting.
type Bounds struct {
	b *geom.Bounds
}

// NewBounds returns an empty Bounds.
func NewBounds() *Bounds {
	return &Bounds{b: geom.NewBounds(geom.XY)}
}

// Extend adds points to the bounds.
func (b *Bounds) Extend(points ...Point) *Bounds {
	for _, p := range points {
		b.b.Extend(geom.NewPointFlat(geom.XY, []float64{p.Lng, p.Lat}))
	}
	return b
}

// Merge adds other's extent.
func (b *Bounds) Merge(other *Bounds) *Bounds {
	if other == nil || other.IsEmpty() {
		return b
	}
	return b.Extend(other.SouthWest(), other.NorthEast())
}

// IsEmpty reports whether no point has been added.
func (b *Bounds) IsEmpty() bool {
	return b == nil || b.b.IsEmpty()
}

// SouthWest returns the minimum corner.
func (b *Bounds) SouthWest() Point {
	return Point{Lng: b.b.Min(0), Lat: b.b.Min(1)}
}

// NorthEast returns the maximum corner.
func (b *Bounds) NorthEast() Point {
	return Point{Lng: b.b.Max(0), Lat: b.b.Max(1)}
}

// Center returns the midpoint of the bounds.
func (b *Bounds) Center() Point {
	sw, ne := b.SouthWest(), b.NorthEast()
	return Point{Lng: (sw.Lng + ne.Lng) / 2, Lat: (sw.Lat + ne.Lat) / 2}
}

// Contains reports whether p lies inside the bounds, edges included.
func (b *Bounds) Contains(p Point) bool {
	if b.IsEmpty() {
		return false
	}
	return b.b.OverlapsPoint(geom.XY, geom.Coord{p.Lng, p.Lat})
}

// Project converts p to web-mercator pixel coordinates at zoom.
func Project(p Point, zoom int) (x, y float64) {
	scale := float64(TileSize) * math.Exp2(float64(zoom))
	lat := math.Max(math.Min(p.Lat, 85.0511287798), -85.0511287798)
	sin := math.Sin(lat * math.Pi / 180)
	x = (p.Lng + 180) / 360 * scale
	y = (0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)) * scale
	return x, y
}

// Unproject converts web-mercator pixel coordinates at zoom back to a position.
func Unproject(x, y float64, zoom int) Point {
	scale := float64(TileSize) * math.Exp2(float64(zoom))
	lng := x/scale*360 - 180
	n := math.Pi - 2*math.Pi*y/scale
	lat := 180 / math.Pi * math.Atan(math.Sinh(n))
	return Point{Lng: lng, Lat: lat}
}

// FitZoom returns the largest zoom, capped at maxZoom, at which b fits a
// viewport of width×height pixels.
func FitZoom(b *Bounds, width, height, maxZoom int) int {
	if b.IsEmpty() {
		return 0
	}
	sw, ne := b.SouthWest(), b.NorthEast()
	for z := maxZoom; z > 0; z-- {
		x0, y0 := Project(Point{Lng: sw.Lng, Lat: ne.Lat}, z)
		x1, y1 := Project(Point{Lng: ne.Lng, Lat: sw.Lat}, z)
		if x1-x0 <= float64(width) && y1-y0 <= float64(height) {
			return z
		}
	}
	return 0
}
