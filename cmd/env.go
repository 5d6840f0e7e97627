package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/recordmap/internal/host"
	"github.com/sells-group/recordmap/internal/record"
	"github.com/sells-group/recordmap/internal/session"
	"github.com/sells-group/recordmap/pkg/geocode"
)

// initHost opens the configured host document. A SQLite main table is
// created empty when missing.
func initHost(ctx context.Context) (host.Host, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		h, err := openSQLite(ctx)
		if err != nil {
			return nil, err
		}
		if err := h.EnsureTable(ctx, cfg.Store.Table, nil); err != nil {
			_ = h.Close()
			return nil, eris.Wrap(err, "ensure main table")
		}
		return h, nil
	case "postgres":
		return host.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Table, cfg.Store.ReadOnly)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func openSQLite(ctx context.Context) (*host.SQLite, error) {
	var opts []host.SQLiteOption
	if cfg.Store.ReadOnly {
		opts = append(opts, host.WithReadOnly())
	}
	h, err := host.NewSQLite(cfg.Store.DatabaseURL, cfg.Store.Table, opts...)
	if err != nil {
		return nil, err
	}
	if err := h.Migrate(ctx); err != nil {
		_ = h.Close()
		return nil, eris.Wrap(err, "migrate host")
	}
	return h, nil
}

// initGeocoder builds the geocode client. The returned func releases the
// result cache.
func initGeocoder() (*geocode.Client, func(), error) {
	provider, err := geocode.NewProvider(cfg.Geocode.Provider, geocode.ProviderConfig{
		GoogleAPIKey: cfg.Geocode.GoogleAPIKey,
		NominatimURL: cfg.Geocode.NominatimURL,
		CensusURL:    cfg.Geocode.CensusURL,
		UserAgent:    cfg.Geocode.UserAgent,
		Timeout:      cfg.Geocode.Timeout(),
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []geocode.Option{geocode.WithDelay(cfg.Geocode.Delay())}
	cleanup := func() {}
	if cfg.Geocode.RedisURL != "" {
		cache, err := geocode.NewRedisCacheFromURL(cfg.Geocode.RedisURL, cfg.Geocode.CacheTTL())
		if err != nil {
			zap.L().Warn("geocode cache disabled", zap.Error(err))
		} else {
			opts = append(opts, geocode.WithCache(cache))
			cleanup = func() { _ = cache.Close() }
		}
	}

	zap.L().Info("geocoder ready",
		zap.String("provider", provider.Name()),
		zap.Duration("delay", cfg.Geocode.Delay()),
		zap.Bool("cache", cfg.Geocode.RedisURL != ""),
	)
	return geocode.NewClient(provider, opts...), cleanup, nil
}

// sessionOptions returns the widget options from config.
func sessionOptions() session.Options {
	return session.Options{
		Mode:             session.Mode(cfg.Widget.Mode),
		MapSource:        cfg.Widget.MapSource,
		MapCopyright:     cfg.Widget.MapCopyright,
		AdditionalLayers: cfg.Widget.AdditionalLayers,
	}
}

// hostMapping returns the configured role mapping keyed by role name.
func hostMapping() map[string]any {
	decls := record.Declarations()
	roles := make([]string, len(decls))
	for i, d := range decls {
		roles[i] = string(d.Name)
	}
	return cfg.Widget.RoleMapping(roles)
}

// loadOptions overlays the YAML or JSON options file at path onto base.
func loadOptions(path string, base session.Options) (session.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrap(err, "read options file")
	}
	opts := base
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return base, eris.Wrapf(err, "parse options file %s", path)
	}
	return opts, nil
}

func findRecord(recs []record.Record, id record.RowID) (record.Record, bool) {
	for _, r := range recs {
		if r.ID == id {
			return r, true
		}
	}
	return record.Record{}, false
}
