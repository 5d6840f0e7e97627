package geocode

import (
	"context"
	"sync"
)

// Static answers from a fixed table keyed by normalised address. It serves
// offline runs and tests.
type Static struct {
	mu      sync.Mutex
	entries map[string]LatLng
	calls   []string
}

// NewStatic creates a Static provider from address → position pairs.
func NewStatic(entries map[string]LatLng) *Static {
	s := &Static{entries: make(map[string]LatLng, len(entries))}
	for addr, pos := range entries {
		s.entries[NormalizeAddress(addr)] = pos
	}
	return s
}

// Name implements Provider.
func (s *Static) Name() string { return "static" }

// Lookup implements Provider.
func (s *Static) Lookup(_ context.Context, address string) (*LatLng, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, address)
	pos, ok := s.entries[NormalizeAddress(address)]
	if !ok {
		return nil, nil
	}
	return &pos, nil
}

// Calls returns the addresses looked up so far.
func (s *Static) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
