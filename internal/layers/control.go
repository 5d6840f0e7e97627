package layers

import (
	"encoding/json"
	"html/template"
	"io"
	"sync"

	"github.com/rotisserie/eris"
)

// ControlKind is the shape of the overlay control.
type ControlKind string

const (
	ControlNone    ControlKind = "none"
	ControlFlat    ControlKind = "flat"
	ControlGrouped ControlKind = "grouped"
)

// CheckState is the tri-state of a parent checkbox.
type CheckState string

const (
	CheckAll  CheckState = "all"
	CheckSome CheckState = "some"
	CheckNone CheckState = "none"
)

// Entry is one overlay toggle.
type Entry struct {
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// Parent is the collapsible group holding the main layers.
type Parent struct {
	Title   string   `json:"title"`
	Entries []*Entry `json:"entries"`
}

// State derives the parent checkbox from its children.
func (p *Parent) State() CheckState {
	visible := 0
	for _, e := range p.Entries {
		if e.Visible {
			visible++
		}
	}
	switch {
	case len(p.Entries) > 0 && visible == len(p.Entries):
		return CheckAll
	case visible > 0:
		return CheckSome
	}
	return CheckNone
}

// Toggler applies visibility to the map.
type Toggler interface {
	SetGroupVisible(group string, visible bool) bool
}

// Control is the overlay toggle UI.
type Control struct {
	mu      sync.Mutex
	Kind    ControlKind `json:"kind"`
	Parent  *Parent     `json:"parent,omitempty"`
	Entries []*Entry    `json:"entries,omitempty"`
	target  Toggler
}

// BuildControl decides the control shape. No control is shown for one overlay
// or fewer. Layer-grouped GeoJSON mode with more than one main group nests the
// main groups under a parent titled title; everything else is a flat list.
func BuildControl(main, aux []*Group, layerGrouped bool, title string, target Toggler) *Control {
	c := &Control{Kind: ControlNone, target: target}
	if len(main)+len(aux) <= 1 {
		return c
	}
	if layerGrouped && len(main) > 1 {
		c.Kind = ControlGrouped
		c.Parent = &Parent{Title: title, Entries: entries(main)}
		c.Entries = entries(aux)
		return c
	}
	c.Kind = ControlFlat
	c.Entries = append(entries(main), entries(aux)...)
	return c
}

func entries(groups []*Group) []*Entry {
	out := make([]*Entry, 0, len(groups))
	for _, g := range groups {
		out = append(out, &Entry{Name: g.Name, Visible: true})
	}
	return out
}

// Overlays lists every toggleable overlay name.
func (c *Control) Overlays() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	if c.Parent != nil {
		for _, e := range c.Parent.Entries {
			out = append(out, e.Name)
		}
	}
	for _, e := range c.Entries {
		out = append(out, e.Name)
	}
	return out
}

// Toggle shows or hides one overlay. Naming the parent toggles all of its
// children. It reports false for unknown names.
func (c *Control) Toggle(name string, visible bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	var hit []*Entry
	if c.Parent != nil {
		if name == c.Parent.Title {
			hit = c.Parent.Entries
		} else {
			hit = find(c.Parent.Entries, name)
		}
	}
	if hit == nil {
		hit = find(c.Entries, name)
	}
	if hit == nil {
		return false
	}
	for _, e := range hit {
		e.Visible = visible
		if c.target != nil {
			c.target.SetGroupVisible(e.Name, visible)
		}
	}
	return true
}

func find(list []*Entry, name string) []*Entry {
	for _, e := range list {
		if e.Name == name {
			return []*Entry{e}
		}
	}
	return nil
}

var controlTemplate = template.Must(template.New("control").Parse(
	`{{if ne .Kind "none"}}<div class="layer-control layer-control-{{.Kind}}">` +
		`{{with .Parent}}<details class="layer-control-group" open><summary>` +
		`<label><input type="checkbox" data-layer-group="{{.Title}}"` +
		`{{if eq .State "all"}} checked{{end}}{{if eq .State "some"}} data-indeterminate="true"{{end}}> {{.Title}}</label>` +
		`</summary>{{range .Entries}}{{template "entry" .}}{{end}}</details>{{end}}` +
		`{{range .Entries}}{{template "entry" .}}{{end}}` +
		`</div>{{end}}` +
		`{{define "entry"}}<label class="layer-control-entry"><input type="checkbox" data-layer="{{.Name}}"{{if .Visible}} checked{{end}}> {{.Name}}</label>{{end}}`,
))

// Render writes the control markup. A ControlNone control writes nothing.
func (c *Control) Render(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := controlTemplate.Execute(w, c); err != nil {
		return eris.Wrap(err, "layers: render control")
	}
	return nil
}

type controlJSON struct {
	Kind        ControlKind `json:"kind"`
	Parent      *Parent     `json:"parent,omitempty"`
	ParentState CheckState  `json:"parentState,omitempty"`
	Entries     []*Entry    `json:"entries,omitempty"`
}

// MarshalJSON encodes the control under its lock.
func (c *Control) MarshalJSON() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := controlJSON{Kind: c.Kind, Parent: c.Parent, Entries: c.Entries}
	if c.Parent != nil {
		out.ParentState = c.Parent.State()
	}
	return json.Marshal(out)
}
