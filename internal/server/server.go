// Package server exposes a map session over HTTP: the host event surface,
// snapshots, basemap tiles and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/canvas"
	"github.com/sells-group/recordmap/internal/metrics"
	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/internal/session"
	"github.com/sells-group/recordmap/internal/tiles"
)

// Source supplies the main table for reloads.
type Source interface {
	Records(ctx context.Context) ([]record.Record, error)
}

// Option configures a Server.
type Option func(*Server)

// WithTiles serves basemap tiles through p.
func WithTiles(p *tiles.Proxy) Option {
	return func(s *Server) { s.tiles = p }
}

// WithSource enables reloads from src using mapping.
func WithSource(src Source, mapping map[string]any) Option {
	return func(s *Server) {
		s.source = src
		s.mapping = mapping
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server routes HTTP requests to one session.
type Server struct {
	session *session.Session
	tiles   *tiles.Proxy
	source  Source
	mapping map[string]any
	origins []string
}

// New creates a Server for sess.
func New(sess *session.Session, opts ...Option) *Server {
	s := &Server{session: sess, origins: []string{"*"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reload fetches the main table from the source and refreshes the session.
func (s *Server) Reload(ctx context.Context) error {
	if s.source == nil {
		return errNoSource
	}
	recs, err := s.source.Records(ctx)
	if err != nil {
		return err
	}
	return s.session.OnRecords(ctx, recs, s.mapping)
}

var errNoSource = errors.New("server: no record source configured")

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(accessLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.session.ID()})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/columns", s.handleColumns)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/features", s.handleFeatures)
		r.Get("/control", s.handleControl)
		r.Post("/records", s.handleRecords)
		r.Post("/record", s.handleRecord)
		r.Post("/new-record", s.handleNewRecord)
		r.Put("/options", s.handleOptions)
		r.Post("/reload", s.handleReload)
		r.Post("/select/{id}", s.handleSelect)
		r.Post("/camera", s.handleCamera)
		r.Post("/layers/{name}", s.handleToggle)
		r.Post("/layers/{name}/select/{id}", s.handleSelectAux)
	})

	if s.tiles != nil {
		r.Get("/tiles/{z}/{x}/{y}", s.handleTile)
	}
	return r
}

func (s *Server) handleColumns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, record.Declarations())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleFeatures(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	if snap.Features == nil {
		writeError(w, http.StatusNotFound, "no map rendered")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := json.NewEncoder(w).Encode(snap.Features); err != nil {
		zap.L().Warn("server: encode features", zap.Error(err))
	}
}

func (s *Server) handleControl(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(s.session.Snapshot().ControlHTML))
}

type recordsRequest struct {
	Records []record.Record `json:"records"`
	Mapping map[string]any  `json:"mapping"`
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	var req recordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.respond(w, s.session.OnRecords(r.Context(), req.Records, req.Mapping))
}

type recordRequest struct {
	Record  *record.Record `json:"record"`
	Mapping map[string]any `json:"mapping"`
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Record == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.respond(w, s.session.OnRecord(r.Context(), *req.Record, req.Mapping))
}

func (s *Server) handleNewRecord(w http.ResponseWriter, _ *http.Request) {
	s.session.OnNewRecord()
	s.respond(w, nil)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	var opts session.Options
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.tiles != nil {
		if err := s.tiles.SetSource(opts.MapSource); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.respond(w, s.session.OnOptions(r.Context(), opts))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	err := s.Reload(r.Context())
	if errors.Is(err, errNoSource) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	s.respond(w, err)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row id")
		return
	}
	if !s.session.Click(r.Context(), record.RowID(id)) {
		writeError(w, http.StatusNotFound, "row is not on the map")
		return
	}
	s.respond(w, nil)
}

func (s *Server) handleSelectAux(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid row id")
		return
	}
	if !s.session.ClickAux(chi.URLParam(r, "name"), record.RowID(id)) {
		writeError(w, http.StatusNotFound, "feature has no popup on the map")
		return
	}
	s.respond(w, nil)
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	var v canvas.View
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.session.CameraMoved(v) {
		writeError(w, http.StatusConflict, "no map rendered")
		return
	}
	s.respond(w, nil)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.session.ToggleLayer(chi.URLParam(r, "name"), req.Visible) {
		writeError(w, http.StatusNotFound, "unknown layer")
		return
	}
	s.respond(w, nil)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	var zxy [3]int
	for i, key := range []string{"z", "x", "y"} {
		raw := chi.URLParam(r, key)
		if i == 2 {
			raw = strings.TrimSuffix(raw, path.Ext(raw))
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid tile path", http.StatusBadRequest)
			return
		}
		zxy[i] = n
	}
	s.tiles.Serve(w, r, zxy[0], zxy[1], zxy[2])
}

// respond writes the snapshot after an event. A RenderError is part of the
// snapshot, not a failed request.
func (s *Server) respond(w http.ResponseWriter, err error) {
	var renderErr *session.RenderError
	if err != nil && !errors.As(err, &renderErr) {
		zap.L().Error("server: event failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "event failed")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// accessLog records request duration by route pattern.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r)
		dur := time.Since(start)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(sw.status)).
			Observe(float64(dur.Milliseconds()))
		zap.L().Debug("http_access",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", sw.status),
			zap.Duration("duration", dur),
		)
	})
}
