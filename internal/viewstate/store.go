// Package viewstate remembers the camera across rebuilds.
package viewstate

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/canvas"
	"github.com/sells-group/recordmap/internal/geometry"
)

// DefaultMaxFitZoom caps the zoom used when fitting bounds.
const DefaultMaxFitZoom = 15

// Store holds the last camera position. The first fitted render creates it;
// after that only CameraMoved overwrites it and renders just read it. Until
// auxiliary points have extended the initial fit, the fitted view stays
// provisional and Refit may widen it.
type Store struct {
	mu          sync.Mutex
	state       *canvas.View
	userSet     bool
	provisional bool
	maxFitZoom  int
}

// New creates an empty Store. maxFitZoom <= 0 selects DefaultMaxFitZoom.
func New(maxFitZoom int) *Store {
	if maxFitZoom <= 0 {
		maxFitZoom = DefaultMaxFitZoom
	}
	return &Store{maxFitZoom: maxFitZoom}
}

// Apply positions cv for a render. With no stored view the camera is fitted
// to b; otherwise the stored view is restored. Empty bounds skip the fit.
// It reports whether the camera was fitted.
func (s *Store) Apply(cv canvas.Canvas, b *geometry.Bounds) bool {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state != nil {
		cv.SetView(*state)
		return false
	}
	if b.IsEmpty() {
		zap.L().Debug("viewstate: no points to fit")
		return false
	}
	cv.FitBounds(b, s.maxFitZoom)
	s.created(cv.View())
	return true
}

// Refit fits cv to b once auxiliary points arrive. It applies while no view
// exists or the initial fit is still provisional, and never after the user
// moved the camera. A successful refit settles the view.
func (s *Store) Refit(cv canvas.Canvas, b *geometry.Bounds) bool {
	s.mu.Lock()
	eligible := !s.userSet && (s.state == nil || s.provisional)
	s.mu.Unlock()
	if !eligible || b.IsEmpty() {
		return false
	}
	cv.FitBounds(b, s.maxFitZoom)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.userSet {
		v := cv.View()
		s.state = &v
		s.provisional = false
	}
	return true
}

// Provisional reports whether the stored view is an initial fit that
// auxiliary points have not yet extended.
func (s *Store) Provisional() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provisional
}

func (s *Store) created(v canvas.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.userSet {
		s.state = &v
		s.provisional = true
	}
}

// CameraMoved records a user-driven camera move.
func (s *Store) CameraMoved(v canvas.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &v
	s.userSet = true
	s.provisional = false
}

// View returns the stored view.
func (s *Store) View() (canvas.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return canvas.View{}, false
	}
	return *s.state, true
}
