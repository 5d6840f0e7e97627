package canvas

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/geometry"
)

const (
	defaultWidth          = 800
	defaultHeight         = 600
	defaultClusterRadius  = 80.0
	defaultClusterMaxZoom = 18
)

// ClusterIconFunc returns the badge class for a cluster.
type ClusterIconFunc func(childCount int, members []feature.Key) string

// Placed is a feature as it currently sits on the canvas.
type Placed struct {
	Group      string             `json:"group"`
	Feature    *feature.Feature   `json:"-"`
	Appearance feature.Appearance `json:"appearance"`
}

// Restyle records one restyle call.
type Restyle struct {
	Key        feature.Key
	Appearance feature.Appearance
}

// Cluster is a grid cell holding more than one marker at some zoom.
type Cluster struct {
	Center  geometry.Point `json:"center"`
	Count   int            `json:"count"`
	Members []feature.Key  `json:"members"`
	Class   string         `json:"class"`
}

// Option configures a Memory canvas.
type Option func(*Memory)

// WithViewport sets the viewport size in pixels.
func WithViewport(width, height int) Option {
	return func(m *Memory) {
		if width > 0 && height > 0 {
			m.width, m.height = width, height
		}
	}
}

// WithClusterIcon installs the cluster badge factory.
func WithClusterIcon(fn ClusterIconFunc) Option {
	return func(m *Memory) { m.icon = fn }
}

// WithClusterMaxZoom sets the zoom at and above which markers are never clustered.
func WithClusterMaxZoom(z int) Option {
	return func(m *Memory) { m.clusterMaxZoom = z }
}

// Memory is an in-process Canvas. It clusters markers on a pixel grid and can
// export its contents as GeoJSON. Safe for concurrent use.
type Memory struct {
	mu             sync.RWMutex
	width, height  int
	radius         float64
	clusterMaxZoom int
	icon           ClusterIconFunc

	placed   map[feature.Key]*Placed
	order    []feature.Key
	groups   []string
	hidden   map[string]bool
	view     View
	popup    *feature.Key
	restyles []Restyle
}

var _ Canvas = (*Memory)(nil)

// NewMemory creates an empty canvas.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		width:          defaultWidth,
		height:         defaultHeight,
		radius:         defaultClusterRadius,
		clusterMaxZoom: defaultClusterMaxZoom,
		placed:         make(map[feature.Key]*Placed),
		hidden:         make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Place implements Canvas. Placing an existing key replaces it.
func (m *Memory) Place(group string, f *feature.Feature, a feature.Appearance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.placed[f.Key]; !ok {
		m.order = append(m.order, f.Key)
	}
	m.placed[f.Key] = &Placed{Group: group, Feature: f, Appearance: a}
	if !slices.Contains(m.groups, group) {
		m.groups = append(m.groups, group)
	}
}

// Restyle implements Canvas.
func (m *Memory) Restyle(key feature.Key, a feature.Appearance) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.placed[key]
	if !ok {
		return false
	}
	p.Appearance = a
	m.restyles = append(m.restyles, Restyle{Key: key, Appearance: a})
	return true
}

// OpenPopup implements Canvas.
func (m *Memory) OpenPopup(key feature.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.placed[key]; !ok {
		return false
	}
	k := key
	m.popup = &k
	return true
}

// EnsureVisible implements Canvas.
func (m *Memory) EnsureVisible(key feature.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.placed[key]
	if !ok {
		return false
	}
	target, ok := anchor(p.Feature)
	if !ok {
		return true
	}
	if p.Feature.Kind == feature.KindMarker {
		for m.view.Zoom < m.clusterMaxZoom && m.clusteredLocked(key, m.view.Zoom) {
			m.view.Zoom++
		}
	}
	if !m.viewportLocked(m.view).Contains(target) {
		m.view.Center = target
	}
	return true
}

// FitBounds implements Canvas. Empty bounds leave the camera unchanged.
func (m *Memory) FitBounds(b *geometry.Bounds, maxZoom int) {
	if b.IsEmpty() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = View{
		Center: b.Center(),
		Zoom:   geometry.FitZoom(b, m.width, m.height, maxZoom),
	}
}

// SetView implements Canvas.
func (m *Memory) SetView(v View) {
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
}

// View implements Canvas.
func (m *Memory) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// SetGroupVisible implements Canvas.
func (m *Memory) SetGroupVisible(group string, visible bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.groups, group) {
		return false
	}
	m.hidden[group] = !visible
	return true
}

// Clear implements Canvas.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = make(map[feature.Key]*Placed)
	m.order = nil
	m.groups = nil
	m.hidden = make(map[string]bool)
	m.popup = nil
}

// Placed returns the placed features in placement order.
func (m *Memory) Placed() []Placed {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Placed, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, *m.placed[k])
	}
	return out
}

// Lookup returns the placed feature for key.
func (m *Memory) Lookup(key feature.Key) (Placed, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.placed[key]
	if !ok {
		return Placed{}, false
	}
	return *p, true
}

// Groups returns group names in order of first placement.
func (m *Memory) Groups() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.groups...)
}

// GroupVisible reports whether a group is shown.
func (m *Memory) GroupVisible(group string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.groups, group) && !m.hidden[group]
}

// Viewport returns the area the current view shows.
func (m *Memory) Viewport() *geometry.Bounds {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewportLocked(m.view)
}

// Popup returns the feature whose popup is open.
func (m *Memory) Popup() (feature.Key, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.popup == nil {
		return feature.Key{}, false
	}
	return *m.popup, true
}

// Restyles returns every restyle call since creation.
func (m *Memory) Restyles() []Restyle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Restyle(nil), m.restyles...)
}

// Clusters groups visible markers into grid cells at zoom. Cells holding a
// single marker are not reported.
func (m *Memory) Clusters(zoom int) []Cluster {
	m.mu.RLock()
	cells := m.cellsLocked(zoom)
	icon := m.icon
	m.mu.RUnlock()

	var out []Cluster
	for _, c := range cells {
		if len(c.members) < 2 {
			continue
		}
		cl := Cluster{
			Center:  geometry.Point{Lng: c.sumLng / float64(len(c.members)), Lat: c.sumLat / float64(len(c.members))},
			Count:   len(c.members),
			Members: c.members,
			Class:   "marker-cluster",
		}
		if icon != nil {
			cl.Class = icon(cl.Count, cl.Members)
		}
		out = append(out, cl)
	}
	return out
}

type cell struct {
	members        []feature.Key
	sumLng, sumLat float64
}

type cellKey struct{ x, y int }

func (m *Memory) cellsLocked(zoom int) []*cell {
	if zoom >= m.clusterMaxZoom {
		return nil
	}
	index := make(map[cellKey]*cell)
	var cells []*cell
	for _, k := range m.order {
		p := m.placed[k]
		if p.Feature.Kind != feature.KindMarker || m.hidden[p.Group] {
			continue
		}
		x, y := geometry.Project(p.Feature.Position, zoom)
		ck := cellKey{int(math.Floor(x / m.radius)), int(math.Floor(y / m.radius))}
		c, ok := index[ck]
		if !ok {
			c = &cell{}
			index[ck] = c
			cells = append(cells, c)
		}
		c.members = append(c.members, k)
		c.sumLng += p.Feature.Position.Lng
		c.sumLat += p.Feature.Position.Lat
	}
	return cells
}

func (m *Memory) clusteredLocked(key feature.Key, zoom int) bool {
	for _, c := range m.cellsLocked(zoom) {
		if len(c.members) > 1 && slices.Contains(c.members, key) {
			return true
		}
	}
	return false
}

func (m *Memory) viewportLocked(v View) *geometry.Bounds {
	cx, cy := geometry.Project(v.Center, v.Zoom)
	hw, hh := float64(m.width)/2, float64(m.height)/2
	return geometry.NewBounds().Extend(
		geometry.Unproject(cx-hw, cy+hh, v.Zoom),
		geometry.Unproject(cx+hw, cy-hh, v.Zoom),
	)
}

// FeatureCollection exports visible features as GeoJSON. Markers become
// points; labels are rendered at the current zoom.
func (m *Memory) FeatureCollection() *geojson.FeatureCollection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(m.order))}
	for _, k := range m.order {
		p := m.placed[k]
		if m.hidden[p.Group] {
			continue
		}
		f := p.Feature
		g := f.Geometry
		if f.Kind == feature.KindMarker {
			g = geom.NewPointFlat(geom.XY, []float64{f.Position.Lng, f.Position.Lat})
		}
		props := map[string]any{
			"row":      int64(f.Key.Row),
			"group":    p.Group,
			"name":     f.Name,
			"popup":    f.Popup,
			"selected": p.Appearance.Selected,
			"pane":     string(p.Appearance.Pane),
		}
		if f.Key.Source != "" {
			props["source"] = f.Key.Source
		}
		if p.Appearance.Icon != "" {
			props["icon"] = string(p.Appearance.Icon)
		}
		if len(p.Appearance.Style) > 0 {
			props["style"] = p.Appearance.Style
		}
		if f.Label.VisibleAt(m.view.Zoom) {
			props["label"] = f.Label.HTML(m.view.Zoom)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         keyID(k),
			Geometry:   g,
			Properties: props,
		})
	}
	return fc
}

func keyID(k feature.Key) string {
	if k.Source == "" {
		return fmt.Sprintf("%d", k.Row)
	}
	return fmt.Sprintf("%s/%d", k.Source, k.Row)
}

func anchor(f *feature.Feature) (geometry.Point, bool) {
	if f.Kind == feature.KindMarker {
		return f.Position, true
	}
	if len(f.Points) == 0 {
		return geometry.Point{}, false
	}
	return geometry.NewBounds().Extend(f.Points...).Center(), true
}
