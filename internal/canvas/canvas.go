// Package canvas is the rendering capability the reconciliation engine draws
// on: place features, restyle them, move the camera. Memory is the in-process
// implementation behind the HTTP snapshot and the tests.
package canvas

import (
	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/geometry"
)

// View is a camera position.
type View struct {
	Center geometry.Point `json:"center"`
	Zoom   int            `json:"zoom"`
}

// Canvas is an opaque map surface. Methods taking a key return false when no
// feature with that key is placed.
type Canvas interface {
	// Place adds f to group with appearance a.
	Place(group string, f *feature.Feature, a feature.Appearance)
	Restyle(key feature.Key, a feature.Appearance) bool
	OpenPopup(key feature.Key) bool
	// EnsureVisible zooms in until the feature is no longer clustered and
	// pans only if it is outside the viewport.
	EnsureVisible(key feature.Key) bool
	FitBounds(b *geometry.Bounds, maxZoom int)
	SetView(v View)
	View() View
	SetGroupVisible(group string, visible bool) bool
	// Clear removes every feature and group. The camera is kept.
	Clear()
}

// Factory creates a fresh canvas for a rebuild. icon builds cluster badges.
type Factory func(icon ClusterIconFunc) Canvas

// MemoryFactory returns a Factory of Memory canvases sharing opts.
func MemoryFactory(opts ...Option) Factory {
	return func(icon ClusterIconFunc) Canvas {
		all := append([]Option{}, opts...)
		return NewMemory(append(all, WithClusterIcon(icon))...)
	}
}
