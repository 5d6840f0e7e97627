// Package metrics holds the Prometheus collectors shared across packages.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GeocodeLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recordmap_geocode_lookups_total",
		Help: "Geocode scan decisions per record, by outcome",
	}, []string{"outcome"})
	GeocodeScansTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordmap_geocode_scans_total",
		Help: "Completed geocode scans",
	})
	RendersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordmap_renders_total",
		Help: "Map rebuilds",
	})
	FeaturesSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recordmap_features_skipped_total",
		Help: "Records that produced no feature",
	})
	AuxFetchFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recordmap_aux_fetch_failures_total",
		Help: "Failed auxiliary table fetches",
	}, []string{"table"})
	SelectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recordmap_selections_total",
		Help: "Selection changes, by origin",
	}, []string{"origin"})
	TileRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recordmap_tile_requests_total",
		Help: "Proxied basemap tiles, by cache result",
	}, []string{"cache"})
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recordmap_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"route", "status"})
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			GeocodeLookupsTotal,
			GeocodeScansTotal,
			RendersTotal,
			FeaturesSkippedTotal,
			AuxFetchFailuresTotal,
			SelectionsTotal,
			TileRequestsTotal,
			HTTPRequestDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
