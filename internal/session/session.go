// Package session owns the state of one embedded map: the current batch, the
// canvas, the selection and the camera. Every host and UI event enters here.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/canvas"
	"github.com/sells-group/recordmap/internal/feature"
	"github.com/sells-group/recordmap/internal/geocoding"
	"github.com/sells-group/recordmap/internal/host"
	"github.com/sells-group/recordmap/internal/layers"
	"github.com/sells-group/recordmap/internal/metrics"
	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/internal/resilience"
	"github.com/sells-group/recordmap/internal/selection"
	"github.com/sells-group/recordmap/internal/viewstate"
)

// Mode selects between showing the whole table and only the cursor row.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Options are the widget options persisted by the host.
type Options struct {
	Mode             Mode   `json:"mode" yaml:"mode"`
	MapSource        string `json:"mapSource" yaml:"mapSource"`
	MapCopyright     string `json:"mapCopyright" yaml:"mapCopyright"`
	AdditionalLayers string `json:"additionalLayers" yaml:"additionalLayers"`
}

func (o Options) withDefaults() Options {
	if o.Mode != ModeSingle {
		o.Mode = ModeMulti
	}
	return o
}

// RenderError blocks rendering. Message is shown in place of the map.
type RenderError struct {
	Message string
	Err     error
}

func (e *RenderError) Error() string { return e.Message }

func (e *RenderError) Unwrap() error { return e.Err }

// Deps are the collaborators a session calls out to. Only Canvas is
// required.
type Deps struct {
	Canvas     canvas.Factory
	Tables     host.TableFetcher
	Labels     host.ColumnLabeler
	Cursor     selection.Cursor
	Scanner    *geocoding.Scanner
	Sanitizer  *feature.Sanitizer
	MaxFitZoom int
	// Retry applies to auxiliary table fetches.
	Retry resilience.RetryConfig
}

// Session is the single owned context for one map. Rebuilds bump the
// generation; asynchronous work started by a render only touches the session
// while its generation and canvas are still current.
type Session struct {
	id        string
	ctx       context.Context
	deps      Deps
	selection *selection.Coordinator
	view      *viewstate.Store
	pending   sync.WaitGroup

	mu           sync.Mutex
	generation   uint64
	options      Options
	mapping      record.FieldMapping
	records      []record.Record
	current      *record.Record
	canvas       canvas.Canvas
	main         []*layers.Group
	aux          []*layers.Group
	control      *layers.Control
	layerGrouped bool
	title        string
	renderErr    *RenderError
	warnings     []string
}

// New creates a session. ctx bounds the asynchronous work the session
// starts: auxiliary fetches and geocoding scans.
func New(ctx context.Context, deps Deps, opts Options) *Session {
	if deps.Canvas == nil {
		deps.Canvas = canvas.MemoryFactory()
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = feature.NewSanitizer()
	}
	s := &Session{
		id:        uuid.NewString(),
		ctx:       ctx,
		deps:      deps,
		selection: selection.NewCoordinator(deps.Cursor),
		view:      viewstate.New(deps.MaxFitZoom),
		options:   opts.withDefaults(),
	}
	return s
}

// ID identifies the session in logs and snapshots.
func (s *Session) ID() string { return s.id }

// Generation returns the rebuild counter.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Selection exposes the selection coordinator.
func (s *Session) Selection() *selection.Coordinator { return s.selection }

// Canvas returns the current canvas, or nil before the first render.
func (s *Session) Canvas() canvas.Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas
}

// Options returns the current widget options.
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Mapping returns the mapping resolved for the current batch.
func (s *Session) Mapping() record.FieldMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping
}

func (s *Session) logger() *zap.Logger {
	return zap.L().With(zap.String("session_id", s.id))
}

// OnRecords receives a full-table refresh. In multi mode the map is rebuilt
// from scratch; in both modes a geocoding scan is triggered. Only a missing
// required mapping returns an error.
func (s *Session) OnRecords(ctx context.Context, records []record.Record, hostMapping map[string]any) error {
	s.mu.Lock()
	s.records = records
	s.mapping = record.Resolve(hostMapping, records)
	var err error
	if s.options.Mode == ModeMulti {
		err = s.renderLocked(ctx, records)
	}
	m := s.mapping
	s.mu.Unlock()

	s.triggerScan(records, m)
	return err
}

// OnRecord receives a host cursor move. In multi mode the row's feature is
// selected, its popup opened and the camera moved just enough to show it. In
// single mode the map is rebuilt around that one record, which is then
// selected.
func (s *Session) OnRecord(ctx context.Context, rec record.Record, hostMapping map[string]any) error {
	s.mu.Lock()
	if s.options.Mode == ModeSingle {
		cur := rec
		s.current = &cur
		s.mapping = record.Resolve(hostMapping, []record.Record{rec})
		err := s.renderLocked(ctx, []record.Record{rec})
		cv := s.canvas
		s.mu.Unlock()
		if err != nil {
			return err
		}
		s.selection.Select(ctx, rec.ID, selection.OriginHost)
		if f, ok := s.selection.Feature(rec.ID); ok {
			cv.OpenPopup(f.Key)
		}
		return nil
	}
	cv := s.canvas
	s.mu.Unlock()

	s.selection.Select(ctx, rec.ID, selection.OriginHost)
	if f, ok := s.selection.Feature(rec.ID); ok && cv != nil {
		cv.OpenPopup(f.Key)
		cv.EnsureVisible(f.Key)
	}
	return nil
}

// OnNewRecord handles the host's empty new-row state: the selection and all
// features are cleared.
func (s *Session) OnNewRecord() {
	s.selection.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.current = nil
	s.main, s.aux = nil, nil
	if s.canvas != nil {
		s.canvas.Clear()
	}
	s.control = layers.BuildControl(nil, nil, false, "", s.canvas)
	s.logger().Debug("session: new record, map cleared")
}

// OnOptions applies changed widget options and re-renders whatever the
// current mode shows. The camera is kept.
func (s *Session) OnOptions(ctx context.Context, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = opts.withDefaults()
	switch {
	case s.options.Mode == ModeSingle && s.current != nil:
		return s.renderLocked(ctx, []record.Record{*s.current})
	case s.options.Mode == ModeMulti && s.records != nil:
		return s.renderLocked(ctx, s.records)
	}
	return nil
}

// Click handles a user click on a main-table feature. It reports false when
// the row has no feature on the current map.
func (s *Session) Click(ctx context.Context, id record.RowID) bool {
	cv := s.Canvas()
	f, ok := s.selection.Feature(id)
	if cv == nil || !ok {
		return false
	}
	s.selection.Select(ctx, id, selection.OriginUser)
	cv.OpenPopup(f.Key)
	return true
}

// ClickAux handles a user click on an auxiliary feature. The popup of an
// interactive layer opens; the selection is left alone. It reports false when
// the feature is not on the current map or has no popup.
func (s *Session) ClickAux(source string, id record.RowID) bool {
	s.mu.Lock()
	cv := s.canvas
	var target *feature.Feature
	for _, g := range s.aux {
		if g.Name != source || !g.Interactive {
			continue
		}
		for _, f := range g.Features {
			if f.Key.Row == id {
				target = f
				break
			}
		}
	}
	s.mu.Unlock()
	if cv == nil || target == nil || target.Popup == "" {
		return false
	}
	return cv.OpenPopup(target.Key)
}

// CameraMoved records a user pan or zoom.
func (s *Session) CameraMoved(v canvas.View) bool {
	cv := s.Canvas()
	if cv == nil {
		return false
	}
	cv.SetView(v)
	s.view.CameraMoved(cv.View())
	return true
}

// ToggleLayer shows or hides one overlay, or every main layer when name is
// the parent group title.
func (s *Session) ToggleLayer(name string, visible bool) bool {
	s.mu.Lock()
	control := s.control
	s.mu.Unlock()
	if control == nil {
		return false
	}
	return control.Toggle(name, visible)
}

// Wait blocks until pending auxiliary fetches and any running scan finish.
func (s *Session) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.deps.Scanner != nil {
		return s.deps.Scanner.Wait(ctx)
	}
	return nil
}

func (s *Session) warnLocked(msg string) {
	s.warnings = append(s.warnings, msg)
}

func (s *Session) triggerScan(records []record.Record, m record.FieldMapping) {
	if s.deps.Scanner == nil || len(records) == 0 {
		return
	}
	if s.deps.Scanner.Trigger(s.ctx, records, m) {
		s.logger().Debug("session: geocoding scan started", zap.Int("records", len(records)))
	}
}

// renderLocked tears down the map and rebuilds it from records. Callers hold
// s.mu.
func (s *Session) renderLocked(ctx context.Context, records []record.Record) error {
	s.generation++
	gen := s.generation
	log := s.logger().With(zap.Uint64("generation", gen))
	metrics.RendersTotal.Inc()

	cv := s.deps.Canvas(s.selection.ClusterClass)
	s.canvas = cv
	s.main, s.aux = nil, nil
	s.warnings, s.renderErr = nil, nil
	s.layerGrouped, s.title = false, ""
	s.control = layers.BuildControl(nil, nil, false, "", cv)

	validation, err := s.mapping.Validate(records)
	if err != nil {
		s.renderErr = &RenderError{Message: err.Error(), Err: err}
		s.selection.Bind(cv, nil)
		log.Info("session: render blocked", zap.Error(err))
		return s.renderErr
	}
	if validation.Mixed {
		s.warnLocked("GeoJSON is mapped together with coordinate or geocoding columns; GeoJSON takes precedence.")
	}

	builder := feature.NewBuilder(s.mapping, s.deps.Sanitizer)
	features := make([]*feature.Feature, 0, len(records))
	for _, rec := range records {
		f, ok := builder.Build(rec)
		if !ok {
			metrics.FeaturesSkippedTotal.Inc()
			continue
		}
		features = append(features, f)
	}

	s.main = layers.Compose(features, s.mapping)
	for _, g := range s.main {
		for _, f := range g.Features {
			cv.Place(g.Name, f, feature.AppearanceFor(f, s.selection.IsSelected(f.Key.Row)))
		}
	}
	s.selection.Bind(cv, features)
	fitted := s.view.Apply(cv, layers.BoundsOf(s.main))

	s.layerGrouped = s.mapping.GeoJSONMode() && s.mapping.Layer != ""
	if s.layerGrouped {
		s.title = s.layerTitle(ctx)
	}
	s.control = layers.BuildControl(s.main, nil, s.layerGrouped, s.title, cv)

	cfgs, err := layers.ParseAuxConfigs(s.options.AdditionalLayers)
	if err != nil {
		log.Warn("session: invalid additional layers", zap.Error(err))
		s.warnLocked("Additional layers setting is not a valid JSON array.")
	}
	reserved := make([]string, 0, len(s.main)+1)
	for _, g := range s.main {
		reserved = append(reserved, g.Name)
	}
	if s.title != "" {
		reserved = append(reserved, s.title)
	}
	cfgs = layers.UniqueNames(cfgs, reserved)
	if len(cfgs) > 0 && s.deps.Tables != nil {
		s.fetchAux(gen, cv, cfgs)
	}

	log.Debug("session: rendered",
		zap.Int("records", len(records)),
		zap.Int("features", len(features)),
		zap.Int("groups", len(s.main)),
		zap.Bool("fitted", fitted),
	)
	return nil
}

// layerTitle names the parent group after the Layer column's label.
func (s *Session) layerTitle(ctx context.Context) string {
	col := s.mapping.Layer
	if s.deps.Labels == nil {
		return col
	}
	label, err := s.deps.Labels.ColumnLabel(ctx, col)
	if err != nil || label == "" {
		s.logger().Warn("session: column label lookup failed", zap.String("column", col), zap.Error(err))
		return col
	}
	return label
}

// fetchAux loads auxiliary tables in the background and attaches them to cv
// if it is still the current map.
func (s *Session) fetchAux(gen uint64, cv canvas.Canvas, cfgs []layers.AuxConfig) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		groups, failed := s.loadAux(cfgs)

		s.mu.Lock()
		defer s.mu.Unlock()
		log := s.logger().With(zap.Uint64("generation", gen))
		if gen != s.generation || cv != s.canvas {
			log.Debug("session: dropping auxiliary layers for a replaced map", zap.Uint64("current", s.generation))
			return
		}
		for _, name := range failed {
			s.warnLocked(fmt.Sprintf("Layer %q could not be loaded.", name))
		}
		layers.SortAux(groups)
		for _, g := range groups {
			for _, f := range g.Features {
				cv.Place(g.Name, f, feature.AppearanceFor(f, false))
			}
		}
		s.aux = groups
		s.control = layers.BuildControl(s.main, s.aux, s.layerGrouped, s.title, cv)
		if !layers.BoundsOf(groups).IsEmpty() {
			s.view.Refit(cv, layers.BoundsOf(s.main, s.aux))
		}
		log.Debug("session: auxiliary layers attached", zap.Int("layers", len(groups)), zap.Int("failed", len(failed)))
	}()
}
