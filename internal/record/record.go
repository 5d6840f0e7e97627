// Package record models host-supplied rows and the role→column mapping used to read them.
package record

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"
)

// RowID is the host-assigned row identity. It is stable across updates and
// unique within a batch.
type RowID int64

// GeocodeInProgress is the Longitude value a host writes while an address is
// being resolved. Records carrying it are not rendered.
const GeocodeInProgress = "..."

// Record is one host row. Fields are keyed by column id.
type Record struct {
	ID     RowID
	Fields map[string]any
}

// New builds a Record from an id and field map.
func New(id RowID, fields map[string]any) Record {
	if fields == nil {
		fields = map[string]any{}
	}
	return Record{ID: id, Fields: fields}
}

// Get returns the raw value of a column. An empty column id is never present.
func (r Record) Get(col string) (any, bool) {
	if col == "" || r.Fields == nil {
		return nil, false
	}
	v, ok := r.Fields[col]
	return v, ok
}

// String returns the column value coerced to a string, or "" when absent.
func (r Record) String(col string) string {
	v, ok := r.Get(col)
	if !ok || v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// Float returns the column value as a float64. The second result is false for
// absent, null, empty or non-numeric values.
func (r Record) Float(col string) (float64, bool) {
	v, ok := r.Get(col)
	if !ok || IsEmpty(v) {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Truthy reports whether the column holds a truthy value.
func (r Record) Truthy(col string) bool {
	v, ok := r.Get(col)
	if !ok {
		return false
	}
	return Truthy(v)
}

// Has reports whether the column holds a non-empty value.
func (r Record) Has(col string) bool {
	v, ok := r.Get(col)
	return ok && !IsEmpty(v)
}

// Clone returns a copy whose field map can be mutated independently.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Fields: fields}
}

// IsEmpty reports whether v is null, an empty string or whitespace only.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Truthy mirrors host semantics for a Geocode toggle column: booleans as-is,
// numbers non-zero, strings non-empty and not "false"/"0".
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		return s != "" && s != "false" && s != "0"
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return true
	}
	return f != 0
}

// MarshalJSON encodes the record flat, with the row id under "id".
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = r.ID
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat host row such as {"id": 3, "Name": "C"}.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "record: decode")
	}
	idVal, ok := raw["id"]
	if !ok {
		return eris.New("record: missing id")
	}
	id, err := cast.ToInt64E(idVal)
	if err != nil {
		return eris.Wrapf(err, "record: invalid id %v", idVal)
	}
	delete(raw, "id")
	r.ID = RowID(id)
	r.Fields = raw
	return nil
}

// Columns is column-oriented table data as returned by a host table fetch:
// {"id": [...], "colA": [...], ...}.
type Columns map[string][]any

// Pivot converts column-oriented data to records. Rows without a usable id
// get their 1-based position as id. Short columns yield nil cells.
func (c Columns) Pivot() []Record {
	n := 0
	for _, col := range c {
		if len(col) > n {
			n = len(col)
		}
	}
	names := make([]string, 0, len(c))
	for name := range c {
		if name != "id" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	ids := c["id"]
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		id := RowID(i + 1)
		if i < len(ids) {
			if v, err := cast.ToInt64E(ids[i]); err == nil {
				id = RowID(v)
			}
		}
		fields := make(map[string]any, len(names))
		for _, name := range names {
			col := c[name]
			if i < len(col) {
				fields[name] = col[i]
			} else {
				fields[name] = nil
			}
		}
		out = append(out, Record{ID: id, Fields: fields})
	}
	return out
}
