// Package geocoding fills in coordinates for records that carry an address,
// writing results back through the host.
package geocoding

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/host"
	"github.com/sells-group/recordmap/internal/metrics"
	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/pkg/geocode"
)

// ErrScanInFlight is returned by Scan while another scan is running.
var ErrScanInFlight = eris.New("geocoding: scan already in flight")

// ErrNoWriteAccess is returned by Scan when the host refuses write-back.
var ErrNoWriteAccess = eris.New("geocoding: no write access")

// ScanResult counts what one scan did.
type ScanResult struct {
	Scanned  int `json:"scanned"`
	Skipped  int `json:"skipped"`
	Cached   int `json:"cached"`
	Resolved int `json:"resolved"`
	NotFound int `json:"notFound"`
	Failed   int `json:"failed"`
	// Stopped is set when the Geocode role is unmapped, which ends the scan.
	Stopped bool `json:"stopped"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithOnComplete registers a callback run after every triggered scan, once
// the slot is free again.
func WithOnComplete(fn func(ScanResult, error)) Option {
	return func(s *Scanner) { s.onComplete = fn }
}

// Scanner runs geocoding scans. At most one scan is in flight; triggers
// that arrive while one runs are dropped, not queued.
type Scanner struct {
	resolver   geocode.Resolver
	writer     host.Writer
	onComplete func(ScanResult, error)

	mu   sync.Mutex
	task *task
}

type task struct {
	done chan struct{}
}

// NewScanner creates a Scanner. writer may be nil, which disables scanning.
func NewScanner(resolver geocode.Resolver, writer host.Writer, opts ...Option) *Scanner {
	s := &Scanner{resolver: resolver, writer: writer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanWrite reports whether write-back is available.
func (s *Scanner) CanWrite() bool {
	if s.writer == nil {
		return false
	}
	if w, ok := s.writer.(interface{ CanWrite() bool }); ok {
		return w.CanWrite()
	}
	return true
}

// Running reports whether a scan is in flight.
func (s *Scanner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

func (s *Scanner) acquire() (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		return nil, false
	}
	s.task = &task{done: make(chan struct{})}
	return s.task, true
}

func (s *Scanner) release(t *task) {
	s.mu.Lock()
	if s.task == t {
		s.task = nil
	}
	s.mu.Unlock()
	close(t.done)
}

// Trigger starts a background scan over records. It reports false when
// write access is missing or a scan is already running.
func (s *Scanner) Trigger(ctx context.Context, records []record.Record, m record.FieldMapping) bool {
	if !s.CanWrite() {
		return false
	}
	t, ok := s.acquire()
	if !ok {
		zap.L().Debug("geocoding: trigger ignored, scan in flight")
		return false
	}
	go func() {
		res, err := s.run(ctx, records, m)
		s.release(t)
		if s.onComplete != nil {
			s.onComplete(res, err)
		}
	}()
	return true
}

// Scan runs one scan synchronously.
func (s *Scanner) Scan(ctx context.Context, records []record.Record, m record.FieldMapping) (ScanResult, error) {
	if !s.CanWrite() {
		return ScanResult{}, ErrNoWriteAccess
	}
	t, ok := s.acquire()
	if !ok {
		return ScanResult{}, ErrScanInFlight
	}
	defer s.release(t)
	return s.run(ctx, records, m)
}

// Wait blocks until the in-flight scan, if any, finishes or ctx ends.
func (s *Scanner) Wait(ctx context.Context) error {
	s.mu.Lock()
	t := s.task
	s.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scanner) run(ctx context.Context, records []record.Record, m record.FieldMapping) (ScanResult, error) {
	var res ScanResult
	log := zap.L().With(zap.Int("records", len(records)))
	defer func() {
		metrics.GeocodeScansTotal.Inc()
		log.Debug("geocoding: scan finished",
			zap.Int("resolved", res.Resolved),
			zap.Int("not_found", res.NotFound),
			zap.Int("failed", res.Failed),
			zap.Bool("stopped", res.Stopped),
		)
	}()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "geocoding: scan cancelled")
		}
		if m.Geocode == "" {
			res.Stopped = true
			break
		}
		res.Scanned++
		s.scanRecord(ctx, rec, m, &res)
	}
	return res, nil
}

func (s *Scanner) scanRecord(ctx context.Context, rec record.Record, m record.FieldMapping, res *ScanResult) {
	log := zap.L().With(zap.Int64("row_id", int64(rec.ID)))

	if !rec.Truthy(m.Geocode) {
		res.Skipped++
		metrics.GeocodeLookupsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if m.Longitude == "" || m.Latitude == "" {
		res.Skipped++
		metrics.GeocodeLookupsTotal.WithLabelValues("skipped").Inc()
		return
	}

	address := strings.TrimSpace(rec.String(m.Address))
	update := map[string]any{}
	needsPosition := !rec.Has(m.Longitude) || rec.String(m.Longitude) == record.GeocodeInProgress

	if m.GeocodedAddress != "" && rec.Has(m.GeocodedAddress) {
		if strings.TrimSpace(rec.String(m.GeocodedAddress)) == address {
			res.Cached++
			metrics.GeocodeLookupsTotal.WithLabelValues("cached").Inc()
			return
		}
		update[m.Longitude] = nil
		update[m.Latitude] = nil
		if m.GeoJSON != "" {
			update[m.GeoJSON] = nil
		}
		needsPosition = true
	}

	if address == "" || !needsPosition {
		res.Skipped++
		metrics.GeocodeLookupsTotal.WithLabelValues("skipped").Inc()
		return
	}

	pos, err := s.resolver.Resolve(ctx, address)
	if err != nil {
		res.Failed++
		metrics.GeocodeLookupsTotal.WithLabelValues("failed").Inc()
		log.Warn("geocoding: resolve failed", zap.String("address", address), zap.Error(err))
		return
	}

	if pos != nil {
		update[m.Longitude] = pos.Lng
		update[m.Latitude] = pos.Lat
	} else {
		update[m.Longitude] = nil
		update[m.Latitude] = nil
	}
	if m.GeocodedAddress != "" {
		update[m.GeocodedAddress] = address
	}

	if err := s.writer.UpdateRecord(ctx, rec.ID, update); err != nil {
		res.Failed++
		metrics.GeocodeLookupsTotal.WithLabelValues("failed").Inc()
		log.Warn("geocoding: write-back failed", zap.Error(err))
		return
	}
	if pos == nil {
		res.NotFound++
		metrics.GeocodeLookupsTotal.WithLabelValues("not_found").Inc()
		log.Info("geocoding: no match", zap.String("address", address))
		return
	}
	res.Resolved++
	metrics.GeocodeLookupsTotal.WithLabelValues("resolved").Inc()
}
