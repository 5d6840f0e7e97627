// Package host defines the collaborators the map engine calls back into and
// ships SQLite and Postgres implementations of them.
package host

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recordmap/internal/record"
)

// Writer applies a partial field update to one row. Used only by the
// geocoding scanner.
type Writer interface {
	UpdateRecord(ctx context.Context, id record.RowID, fields map[string]any) error
}

// TableFetcher returns a table in column-oriented form.
type TableFetcher interface {
	FetchTable(ctx context.Context, table string) (record.Columns, error)
}

// ColumnLabeler resolves a column id of the main table to its display label.
type ColumnLabeler interface {
	ColumnLabel(ctx context.Context, colID string) (string, error)
}

// Cursor moves the host's row cursor.
type Cursor interface {
	SetCursorRow(ctx context.Context, id record.RowID) error
}

// Host is a complete host document backed by one main table.
type Host interface {
	Writer
	TableFetcher
	ColumnLabeler
	Cursor
	// Records returns the main table rows in id order.
	Records(ctx context.Context) ([]record.Record, error)
	// CanWrite reports whether write-back is permitted.
	CanWrite() bool
	Close() error
}

// ErrInvalidIdentifier is returned for table or column names that cannot be
// used safely.
var ErrInvalidIdentifier = eris.New("host: invalid identifier")

// ErrRowNotFound is returned when an update targets a missing row.
var ErrRowNotFound = eris.New("host: row not found")

var identifierRe = regexp.MustCompile(`^[^"\x00-\x1f]{1,63}$`)

// ValidIdentifier reports whether name is acceptable as a table or column
// name: 1 to 63 characters without double quotes or control characters.
func ValidIdentifier(name string) bool {
	return identifierRe.MatchString(name) && strings.TrimSpace(name) == name
}

func checkIdentifiers(names ...string) error {
	for _, n := range names {
		if !ValidIdentifier(n) {
			return eris.Wrapf(ErrInvalidIdentifier, "%q", n)
		}
	}
	return nil
}

// cursorState is the in-process row cursor shared by the implementations.
type cursorState struct {
	row atomic.Int64
	set atomic.Bool
}

// SetCursorRow implements Cursor.
func (c *cursorState) SetCursorRow(_ context.Context, id record.RowID) error {
	c.row.Store(int64(id))
	c.set.Store(true)
	return nil
}

// CursorRow returns the row the cursor was last moved to.
func (c *cursorState) CursorRow() (record.RowID, bool) {
	return record.RowID(c.row.Load()), c.set.Load()
}
