package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/sells-group/recordmap/internal/resilience"
)

const (
	censusOneLineURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusBenchmark  = "Public_AR_Current"
)

type censusOneLineResponse struct {
	Result struct {
		AddressMatches []struct {
			Coordinates struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Census queries the US Census Bureau one-line address geocoder.
type Census struct {
	baseURL string
	client  *http.Client
}

// NewCensus creates a Census provider.
func NewCensus(cfg ProviderConfig) *Census {
	c := &Census{baseURL: cfg.CensusURL, client: cfg.httpClient()}
	if c.baseURL == "" {
		c.baseURL = censusOneLineURL
	}
	return c
}

// Name implements Provider.
func (c *Census) Name() string { return "census" }

// Lookup implements Provider.
func (c *Census) Lookup(ctx context.Context, address string) (*LatLng, error) {
	params := url.Values{
		"address":   {address},
		"benchmark": {censusBenchmark},
		"format":    {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census build request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError("geocode: census", resp.StatusCode)
	}

	var body censusOneLineResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, eris.Wrap(err, "geocode: census parse response")
	}
	if len(body.Result.AddressMatches) == 0 {
		return nil, nil
	}
	m := body.Result.AddressMatches[0]
	return &LatLng{Lat: m.Coordinates.Y, Lng: m.Coordinates.X}, nil
}
