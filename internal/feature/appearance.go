package feature

// Pane is a display layer. Panes draw in z-order features < clusters < selected.
type Pane string

const (
	PaneFeatures Pane = "features"
	PaneClusters Pane = "clusters"
	PaneSelected Pane = "selected"
)

// Icon names the marker glyph.
type Icon string

const (
	IconDefault  Icon = "default"
	IconSelected Icon = "selected"
)

// Fill opacities for geometry layers.
const (
	SelectedOpacity   = 0.6
	UnselectedOpacity = 0.3
)

// Appearance is the visual state a canvas applies to a feature.
type Appearance struct {
	Selected bool           `json:"selected"`
	Icon     Icon           `json:"icon,omitempty"`
	Pane     Pane           `json:"pane"`
	Style    map[string]any `json:"style,omitempty"`
}

// AppearanceFor derives the appearance of f for a selection state. Geometry
// layers keep their custom style with the fill opacity overridden.
func AppearanceFor(f *Feature, selected bool) Appearance {
	a := Appearance{Selected: selected, Pane: PaneFeatures}
	if selected {
		a.Pane = PaneSelected
	}
	if f.Kind == KindMarker {
		a.Icon = IconDefault
		if selected {
			a.Icon = IconSelected
		}
		return a
	}

	style := make(map[string]any, len(f.Style)+1)
	for k, v := range f.Style {
		style[k] = v
	}
	style["fillOpacity"] = UnselectedOpacity
	if selected {
		style["fillOpacity"] = SelectedOpacity
	}
	a.Style = style
	return a
}
