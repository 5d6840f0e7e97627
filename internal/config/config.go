package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Widget  WidgetConfig  `yaml:"widget" mapstructure:"widget"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Tiles   TilesConfig   `yaml:"tiles" mapstructure:"tiles"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// WidgetConfig holds the initial widget options.
type WidgetConfig struct {
	Mode             string `yaml:"mode" mapstructure:"mode"`
	MapSource        string `yaml:"map_source" mapstructure:"map_source"`
	MapCopyright     string `yaml:"map_copyright" mapstructure:"map_copyright"`
	AdditionalLayers string `yaml:"additional_layers" mapstructure:"additional_layers"`
	MaxFitZoom       int    `yaml:"max_fit_zoom" mapstructure:"max_fit_zoom"`
	// Mapping is the role → column table. Empty means columns are matched by
	// role name.
	Mapping map[string]any `yaml:"mapping" mapstructure:"mapping"`
}

// RoleMapping returns Mapping keyed by the given role names. Keys are
// matched case-insensitively because viper lowercases them. It returns nil
// when no mapping is configured.
func (w WidgetConfig) RoleMapping(roles []string) map[string]any {
	if len(w.Mapping) == 0 {
		return nil
	}
	out := make(map[string]any, len(roles))
	for _, role := range roles {
		for k, v := range w.Mapping {
			if strings.EqualFold(k, role) {
				out[role] = v
			}
		}
	}
	return out
}

// GeocodeConfig selects and tunes the geocoding provider.
type GeocodeConfig struct {
	Provider      string `yaml:"provider" mapstructure:"provider"`
	DelayMS       int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	GoogleAPIKey  string `yaml:"google_api_key" mapstructure:"google_api_key"`
	NominatimURL  string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	CensusURL     string `yaml:"census_url" mapstructure:"census_url"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RedisURL      string `yaml:"redis_url" mapstructure:"redis_url"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// Delay returns the pause between provider requests.
func (c GeocodeConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// Timeout returns the provider HTTP timeout.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// CacheTTL returns how long geocode results stay cached.
func (c GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// StoreConfig configures the host document backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	ReadOnly    bool   `yaml:"read_only" mapstructure:"read_only"`
}

// TilesConfig configures the basemap tile cache.
type TilesConfig struct {
	CacheEntries    int `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
}

// CacheTTL returns the tile cache TTL.
func (c TilesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RECORDMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("widget.mode", "multi")
	v.SetDefault("widget.map_source", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("widget.map_copyright",
		`Map data &copy; <a href="https://openstreetmap.org">OpenStreetMap</a> contributors`)
	v.SetDefault("widget.additional_layers", "")
	v.SetDefault("widget.max_fit_zoom", 15)
	v.SetDefault("geocode.provider", "nominatim")
	v.SetDefault("geocode.delay_ms", 1000)
	v.SetDefault("geocode.user_agent", "recordmap/1.0")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.cache_ttl_hours", 720)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "recordmap.db")
	v.SetDefault("store.table", "Records")
	v.SetDefault("tiles.cache_entries", 2048)
	v.SetDefault("tiles.cache_ttl_minutes", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateWidget()...)
	case "render":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateWidget()...)
	case "geocode":
		errs = append(errs, c.validateStore()...)
		if c.Store.ReadOnly {
			errs = append(errs, "store.read_only must be false to write geocoding results")
		}
		if c.Geocode.Provider == "google" && c.Geocode.GoogleAPIKey == "" {
			errs = append(errs, "geocode.google_api_key is required for the google provider")
		}
		if c.Geocode.DelayMS < 0 {
			errs = append(errs, "geocode.delay_ms must be >= 0")
		}
	case "import":
		if c.Store.Driver != "sqlite" {
			errs = append(errs, "store.driver must be sqlite to import")
		}
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.Table == "" {
		errs = append(errs, "store.table is required")
	}
	return errs
}

func (c *Config) validateWidget() []string {
	var errs []string
	if c.Widget.Mode != "single" && c.Widget.Mode != "multi" {
		errs = append(errs, "widget.mode must be single or multi")
	}
	if c.Widget.MaxFitZoom < 0 || c.Widget.MaxFitZoom > 22 {
		errs = append(errs, "widget.max_fit_zoom must be between 0 and 22")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
