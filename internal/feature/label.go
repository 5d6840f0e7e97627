package feature

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/sells-group/recordmap/internal/geometry"
)

const (
	defaultLabelFontSize = 12.0
	minLabelFontSize     = 4.0
	maxLabelFontSize     = 96.0
)

var (
	cssColor      = regexp.MustCompile(`^(#[0-9a-fA-F]{3,8}|[a-zA-Z]{3,20}|(rgb|rgba|hsl|hsla)\([0-9.,%\s]+\))$`)
	cssFontWeight = regexp.MustCompile(`^(normal|bold|bolder|lighter|[1-9]00)$`)
)

// LabelStyle is the inline presentation derived from a LabelStyle payload.
type LabelStyle struct {
	Rotation      float64 `json:"rotation,omitempty"`
	FontSize      float64 `json:"fontSize,omitempty"`
	Color         string  `json:"color,omitempty"`
	FontWeight    string  `json:"fontWeight,omitempty"`
	Opacity       float64 `json:"opacity,omitempty"`
	HasOpacity    bool    `json:"-"`
	MinZoom       int     `json:"minZoom,omitempty"`
	ScaleWithZoom bool    `json:"scaleWithZoom,omitempty"`
	ReferenceZoom int     `json:"referenceZoom,omitempty"`
}

// ParseLabelStyle reads a LabelStyle payload. Unknown keys are ignored and
// unsafe colour or weight values are dropped.
func ParseLabelStyle(payload any) (LabelStyle, error) {
	obj, err := geometry.ParseObject(payload)
	if err != nil {
		return LabelStyle{}, err
	}

	var s LabelStyle
	if v, ok := first(obj, "rotation", "rotate", "angle"); ok {
		s.Rotation = cast.ToFloat64(strings.TrimSuffix(cast.ToString(v), "deg"))
	}
	if v, ok := first(obj, "fontSize", "font-size", "size"); ok {
		s.FontSize = cast.ToFloat64(strings.TrimSuffix(cast.ToString(v), "px"))
	}
	if v, ok := first(obj, "color", "colour"); ok {
		if c := strings.TrimSpace(cast.ToString(v)); cssColor.MatchString(c) {
			s.Color = c
		}
	}
	if v, ok := first(obj, "fontWeight", "font-weight", "weight"); ok {
		if w := strings.TrimSpace(cast.ToString(v)); cssFontWeight.MatchString(w) {
			s.FontWeight = w
		}
	}
	if v, ok := first(obj, "opacity"); ok {
		if o, err := cast.ToFloat64E(v); err == nil {
			s.Opacity = math.Max(0, math.Min(1, o))
			s.HasOpacity = true
		}
	}
	if v, ok := first(obj, "minZoom"); ok {
		s.MinZoom = cast.ToInt(v)
	}
	if v, ok := first(obj, "scaleWithZoom"); ok {
		s.ScaleWithZoom = cast.ToBool(v)
	}
	if v, ok := first(obj, "referenceZoom", "refZoom"); ok {
		s.ReferenceZoom = cast.ToInt(v)
	}
	return s, nil
}

func first(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// FontSizeAt returns the font size for zoom. Without zoom scaling the
// configured size is returned unchanged.
func (s LabelStyle) FontSizeAt(zoom int) float64 {
	size := s.FontSize
	if !s.ScaleWithZoom {
		return size
	}
	if size <= 0 {
		size = defaultLabelFontSize
	}
	scaled := size * math.Exp2(float64(zoom-s.ReferenceZoom)/2)
	return math.Max(minLabelFontSize, math.Min(maxLabelFontSize, scaled))
}

// CSS renders the inline style for zoom.
func (s LabelStyle) CSS(zoom int) string {
	var parts []string
	if s.Rotation != 0 {
		parts = append(parts, "transform: rotate("+formatNumber(s.Rotation)+"deg)")
	}
	if size := s.FontSizeAt(zoom); size > 0 {
		parts = append(parts, "font-size: "+formatNumber(size)+"px")
	}
	if s.Color != "" {
		parts = append(parts, "color: "+s.Color)
	}
	if s.FontWeight != "" {
		parts = append(parts, "font-weight: "+s.FontWeight)
	}
	if s.HasOpacity {
		parts = append(parts, "opacity: "+formatNumber(s.Opacity))
	}
	return strings.Join(parts, "; ")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(math.Round(f*100)/100, 'f', -1, 64)
}

// Label is a permanent on-feature text label.
type Label struct {
	Text  string     `json:"text"`
	Style LabelStyle `json:"style"`
}

// VisibleAt reports whether the label shows at zoom.
func (l *Label) VisibleAt(zoom int) bool {
	return l != nil && zoom >= l.Style.MinZoom
}

// HTML renders the label markup for zoom. Text is already sanitized.
func (l *Label) HTML(zoom int) string {
	css := l.Style.CSS(zoom)
	if css == "" {
		return fmt.Sprintf(`<span class="map-label">%s</span>`, l.Text)
	}
	return fmt.Sprintf(`<span class="map-label" style="%s">%s</span>`, css, l.Text)
}
