package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "multi", cfg.Widget.Mode)
	assert.Contains(t, cfg.Widget.MapSource, "{z}/{x}/{y}")
	assert.Contains(t, cfg.Widget.MapCopyright, "OpenStreetMap")
	assert.Equal(t, 15, cfg.Widget.MaxFitZoom)
	assert.Equal(t, "nominatim", cfg.Geocode.Provider)
	assert.Equal(t, time.Second, cfg.Geocode.Delay())
	assert.Equal(t, 10*time.Second, cfg.Geocode.Timeout())
	assert.Equal(t, 720*time.Hour, cfg.Geocode.CacheTTL())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "recordmap.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "Records", cfg.Store.Table)
	assert.Equal(t, 2048, cfg.Tiles.CacheEntries)
	assert.Equal(t, time.Hour, cfg.Tiles.CacheTTL())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/maps
log:
  level: debug
  format: console
server:
  port: 9090
widget:
  mode: single
  additional_layers: '[{"table":"Zones","columns":{"GeoJSON":"geo"}}]'
  mapping:
    Name: Title
    Popup: [Phone, Email]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "single", cfg.Widget.Mode)
	assert.Contains(t, cfg.Widget.AdditionalLayers, "Zones")
	mapping := cfg.Widget.RoleMapping([]string{"Name", "Popup", "Label"})
	assert.Equal(t, "Title", mapping["Name"])
	assert.Equal(t, []any{"Phone", "Email"}, mapping["Popup"])
	assert.NotContains(t, mapping, "Label")
	// Defaults still apply for unset values
	assert.Equal(t, "Records", cfg.Store.Table)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("RECORDMAP_STORE_DRIVER", "sqlite")
	t.Setenv("RECORDMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RECORDMAP_SERVER_PORT", "3000")
	t.Setenv("RECORDMAP_GEOCODE_PROVIDER", "census")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "census", cfg.Geocode.Provider)
}

func TestRoleMapping_Empty(t *testing.T) {
	assert.Nil(t, WidgetConfig{}.RoleMapping([]string{"Name"}))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Widget.Mode = "multi"
	cfg.Widget.MaxFitZoom = 15
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "recordmap.db"
	cfg.Store.Table = "Records"
	cfg.Geocode.Provider = "nominatim"
	cfg.Geocode.DelayMS = 1000
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "render", "geocode", "import"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.Table = ""

	err := cfg.Validate("render")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), "store.table is required")
}

func TestValidate_Widget(t *testing.T) {
	cfg := validDefaults()
	cfg.Widget.Mode = "grid"
	cfg.Widget.MaxFitZoom = 30

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widget.mode")
	assert.Contains(t, err.Error(), "widget.max_fit_zoom")
}

func TestValidateGeocode(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.Provider = "google"
	cfg.Store.ReadOnly = true

	err := cfg.Validate("geocode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "google_api_key")
	assert.Contains(t, err.Error(), "read_only")
}

func TestValidateImport_RequiresSQLite(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
