// Package selection keeps the single selected row in sync between the map and
// the host cursor.
package selection

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/canvas"
	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/metrics"
	"github.com/sells-group/recordmap/internal/record"
)

// Origin tells where a selection request came from.
type Origin int

const (
	// OriginUser is a click on the map. The host cursor follows.
	OriginUser Origin = iota
	// OriginHost is a host cursor move. It is not echoed back.
	OriginHost
)

func (o Origin) String() string {
	if o == OriginHost {
		return "host"
	}
	return "user"
}

// Cursor moves the host's row cursor.
type Cursor interface {
	SetCursorRow(ctx context.Context, id record.RowID) error
}

// Coordinator holds at most one selected row id. Changing it restyles exactly
// the previously selected and the newly selected feature.
type Coordinator struct {
	mu       sync.Mutex
	selected *record.RowID
	canvas   canvas.Canvas
	features map[record.RowID]*feature.Feature
	cursor   Cursor
}

// NewCoordinator creates an unselected Coordinator. cursor may be nil.
func NewCoordinator(cursor Cursor) *Coordinator {
	return &Coordinator{cursor: cursor, features: map[record.RowID]*feature.Feature{}}
}

// Bind attaches the coordinator to a freshly built canvas and its main-table
// features. The selection survives the rebind.
func (c *Coordinator) Bind(cv canvas.Canvas, features []*feature.Feature) {
	index := make(map[record.RowID]*feature.Feature, len(features))
	for _, f := range features {
		if f.Key.Source == "" {
			index[f.Key.Row] = f
		}
	}
	c.mu.Lock()
	c.canvas = cv
	c.features = index
	c.mu.Unlock()
}

// Selected returns the selected row id.
func (c *Coordinator) Selected() (record.RowID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return 0, false
	}
	return *c.selected, true
}

// IsSelected reports whether id is the selected row.
func (c *Coordinator) IsSelected(id record.RowID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected != nil && *c.selected == id
}

// Select makes id the selected row. It reports false when id was already
// selected, in which case nothing is restyled and the host is not notified.
func (c *Coordinator) Select(ctx context.Context, id record.RowID, origin Origin) bool {
	c.mu.Lock()
	if c.selected != nil && *c.selected == id {
		c.mu.Unlock()
		return false
	}
	if c.selected != nil {
		c.restyleLocked(*c.selected, false)
	}
	sel := id
	c.selected = &sel
	c.restyleLocked(id, true)
	cursor := c.cursor
	c.mu.Unlock()

	metrics.SelectionsTotal.WithLabelValues(origin.String()).Inc()
	zap.L().Debug("selection: selected",
		zap.Int64("row_id", int64(id)),
		zap.Stringer("origin", origin),
	)

	if origin == OriginUser && cursor != nil {
		if err := cursor.SetCursorRow(ctx, id); err != nil {
			zap.L().Debug("selection: cursor sync failed", zap.Int64("row_id", int64(id)), zap.Error(err))
		}
	}
	return true
}

// Clear restyles the selected feature back to unselected.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return
	}
	c.restyleLocked(*c.selected, false)
	c.selected = nil
}

// Feature returns the bound main-table feature for id.
func (c *Coordinator) Feature(id record.RowID) (*feature.Feature, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.features[id]
	return f, ok
}

func (c *Coordinator) restyleLocked(id record.RowID, selected bool) {
	f, ok := c.features[id]
	if !ok || c.canvas == nil {
		return
	}
	c.canvas.Restyle(f.Key, feature.AppearanceFor(f, selected))
}
