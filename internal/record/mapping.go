package record

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// Role is a logical data purpose, independent of the column that carries it.
type Role string

// Roles advertised to the host.
const (
	RoleName            Role = "Name"
	RoleLongitude       Role = "Longitude"
	RoleLatitude        Role = "Latitude"
	RoleGeoJSON         Role = "GeoJSON"
	RoleGeocode         Role = "Geocode"
	RoleAddress         Role = "Address"
	RoleGeocodedAddress Role = "GeocodedAddress"
	RoleStyle           Role = "Style"
	RoleLayer           Role = "Layer"
	RolePopup           Role = "Popup"
	RoleLabel           Role = "Label"
	RoleLabelStyle      Role = "LabelStyle"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{
	RoleName, RoleLongitude, RoleLatitude, RoleGeoJSON, RoleGeocode, RoleAddress,
	RoleGeocodedAddress, RoleStyle, RoleLayer, RolePopup, RoleLabel, RoleLabelStyle,
}

// RoleSpec describes a role as advertised to the host's column-mapping UI.
type RoleSpec struct {
	Name     Role   `json:"name"`
	Title    string `json:"title"`
	Optional bool   `json:"optional"`
	Multiple bool   `json:"allowMultiple,omitempty"`
	Type     string `json:"type,omitempty"`
}

// Declarations returns the column roles the widget asks the host for.
func Declarations() []RoleSpec {
	return []RoleSpec{
		{Name: RoleName, Title: "Name", Type: "Text"},
		{Name: RoleLongitude, Title: "Longitude", Optional: true, Type: "Numeric"},
		{Name: RoleLatitude, Title: "Latitude", Optional: true, Type: "Numeric"},
		{Name: RoleGeoJSON, Title: "GeoJSON", Optional: true, Type: "Any"},
		{Name: RoleGeocode, Title: "Geocode", Optional: true, Type: "Bool"},
		{Name: RoleAddress, Title: "Address", Optional: true, Type: "Text"},
		{Name: RoleGeocodedAddress, Title: "Geocoded Address", Optional: true, Type: "Text"},
		{Name: RoleStyle, Title: "Style", Optional: true, Type: "Any"},
		{Name: RoleLayer, Title: "Layer", Optional: true, Type: "Any"},
		{Name: RolePopup, Title: "Popup", Optional: true, Multiple: true, Type: "Any"},
		{Name: RoleLabel, Title: "Label", Optional: true, Type: "Any"},
		{Name: RoleLabelStyle, Title: "Label Style", Optional: true, Type: "Any"},
	}
}

// ErrMissingRequiredRoles is returned when required roles have no column.
var ErrMissingRequiredRoles = eris.New("record: missing required columns")

// MissingRolesError carries the roles that block rendering.
type MissingRolesError struct {
	Roles []Role
}

func (e *MissingRolesError) Error() string {
	names := make([]string, len(e.Roles))
	for i, r := range e.Roles {
		names[i] = string(r)
	}
	return fmt.Sprintf("Please map all required columns first (missing: %s)", strings.Join(names, ", "))
}

// Is lets eris.Is / errors.Is match ErrMissingRequiredRoles.
func (e *MissingRolesError) Is(target error) bool {
	return target == ErrMissingRequiredRoles
}

// FieldMapping resolves roles to column ids for one batch. An empty string
// means the role is unmapped.
type FieldMapping struct {
	Name            string
	Longitude       string
	Latitude        string
	GeoJSON         string
	Geocode         string
	Address         string
	GeocodedAddress string
	Style           string
	Layer           string
	Label           string
	LabelStyle      string
	Popup           []string
}

// Column returns the column mapped to role, or "".
func (m FieldMapping) Column(role Role) string {
	switch role {
	case RoleName:
		return m.Name
	case RoleLongitude:
		return m.Longitude
	case RoleLatitude:
		return m.Latitude
	case RoleGeoJSON:
		return m.GeoJSON
	case RoleGeocode:
		return m.Geocode
	case RoleAddress:
		return m.Address
	case RoleGeocodedAddress:
		return m.GeocodedAddress
	case RoleStyle:
		return m.Style
	case RoleLayer:
		return m.Layer
	case RoleLabel:
		return m.Label
	case RoleLabelStyle:
		return m.LabelStyle
	case RolePopup:
		if len(m.Popup) > 0 {
			return m.Popup[0]
		}
	}
	return ""
}

// Has reports whether role is mapped.
func (m FieldMapping) Has(role Role) bool {
	if role == RolePopup {
		return len(m.Popup) > 0
	}
	return m.Column(role) != ""
}

// GeoJSONMode reports whether records render as parsed geometries.
func (m FieldMapping) GeoJSONMode() bool {
	return m.GeoJSON != ""
}

func (m *FieldMapping) set(role Role, col string) {
	switch role {
	case RoleName:
		m.Name = col
	case RoleLongitude:
		m.Longitude = col
	case RoleLatitude:
		m.Latitude = col
	case RoleGeoJSON:
		m.GeoJSON = col
	case RoleGeocode:
		m.Geocode = col
	case RoleAddress:
		m.Address = col
	case RoleGeocodedAddress:
		m.GeocodedAddress = col
	case RoleStyle:
		m.Style = col
	case RoleLayer:
		m.Layer = col
	case RoleLabel:
		m.Label = col
	case RoleLabelStyle:
		m.LabelStyle = col
	case RolePopup:
		if col != "" {
			m.Popup = append(m.Popup, col)
		}
	}
}

// Resolve builds a FieldMapping from a host-supplied role→column table. When
// the host supplies none, roles are resolved by presence-testing the first
// record for identically named columns.
func Resolve(host map[string]any, records []Record) FieldMapping {
	if host == nil {
		return FromRecord(records)
	}
	var m FieldMapping
	for _, role := range AllRoles {
		v, ok := host[string(role)]
		if !ok || v == nil {
			continue
		}
		if role == RolePopup {
			for _, col := range columnList(v) {
				m.set(RolePopup, col)
			}
			continue
		}
		if col, err := cast.ToStringE(v); err == nil {
			m.set(role, col)
		}
	}
	return m
}

// FromRecord maps each role to the identically named column when the first
// record carries it.
func FromRecord(records []Record) FieldMapping {
	var m FieldMapping
	if len(records) == 0 {
		return m
	}
	first := records[0]
	for _, role := range AllRoles {
		if _, ok := first.Get(string(role)); ok {
			m.set(role, string(role))
		}
	}
	return m
}

func columnList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, err := cast.ToStringE(item); err == nil && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation is the outcome of checking a mapping against a batch.
type Validation struct {
	// Mixed is set when GeoJSON is mapped alongside coordinate or geocode
	// columns that carry data. GeoJSON wins.
	Mixed bool
}

// Validate checks required roles. Coordinate mode needs Name, Longitude and
// Latitude; GeoJSON mode needs only GeoJSON.
func (m FieldMapping) Validate(records []Record) (Validation, error) {
	var v Validation
	if m.GeoJSONMode() {
		for _, rec := range records {
			if rec.Has(m.Longitude) || rec.Has(m.Latitude) || rec.Truthy(m.Geocode) {
				v.Mixed = true
				break
			}
		}
		return v, nil
	}

	var missing []Role
	for _, role := range []Role{RoleLongitude, RoleLatitude, RoleName} {
		if !m.Has(role) {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		return v, &MissingRolesError{Roles: missing}
	}
	return v, nil
}
