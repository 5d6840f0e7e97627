// Package geocode resolves free-form addresses to coordinates through a
// pluggable provider.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// LatLng is a resolved position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Resolver turns an address into a position. A nil result with a nil error
// means the address has no match.
type Resolver interface {
	Resolve(ctx context.Context, address string) (*LatLng, error)
}

// Provider is one geocoding backend.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, address string) (*LatLng, error)
}

// ErrUnknownProvider is returned by NewProvider for an unrecognised name.
var ErrUnknownProvider = eris.New("geocode: unknown provider")

// ProviderConfig carries the settings every provider may need.
type ProviderConfig struct {
	GoogleAPIKey string
	NominatimURL string
	CensusURL    string
	UserAgent    string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

func (c ProviderConfig) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewProvider selects a provider by name: nominatim, google, census or static.
func NewProvider(name string, cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "nominatim", "osm":
		return NewNominatim(cfg), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, eris.New("geocode: google provider requires an api key")
		}
		return NewGoogle(cfg), nil
	case "census":
		return NewCensus(cfg), nil
	case "static":
		return NewStatic(nil), nil
	}
	return nil, eris.Wrapf(ErrUnknownProvider, "%q", name)
}
