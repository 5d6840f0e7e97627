// Package tiles proxies basemap raster tiles for the configured map source.
package tiles

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recordmap/internal/metrics"
)

// DefaultSource is the OpenStreetMap standard tile layer.
const DefaultSource = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"

const maxZoom = 22

var subdomains = []string{"a", "b", "c"}

// ErrInvalidSource is returned for templates missing {z}, {x} or {y}.
var ErrInvalidSource = eris.New("tiles: source must contain {z}, {x} and {y}")

// ErrInvalidTile is returned for coordinates outside the tile grid.
var ErrInvalidTile = eris.New("tiles: coordinates out of range")

// ValidSource reports whether template is a usable tile URL template.
func ValidSource(template string) bool {
	return strings.Contains(template, "{z}") &&
		strings.Contains(template, "{x}") &&
		strings.Contains(template, "{y}")
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithCache enables tile caching.
func WithCache(c *Cache) Option {
	return func(p *Proxy) { p.cache = c }
}

// WithHTTPClient overrides the upstream client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) { p.client = c }
}

// WithUserAgent sets the User-Agent sent upstream. OSM requires one.
func WithUserAgent(ua string) Option {
	return func(p *Proxy) { p.userAgent = ua }
}

// Proxy fetches tiles from a URL template such as
// https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png.
type Proxy struct {
	mu        sync.RWMutex
	source    string
	client    *http.Client
	cache     *Cache
	userAgent string
}

// NewProxy creates a Proxy for source. An empty source selects DefaultSource.
func NewProxy(source string, opts ...Option) (*Proxy, error) {
	p := &Proxy{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "recordmap/1.0",
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.SetSource(source); err != nil {
		return nil, err
	}
	return p, nil
}

// SetSource switches the upstream template. Cached tiles of other sources
// stay cached under their own key.
func (p *Proxy) SetSource(source string) error {
	if source == "" {
		source = DefaultSource
	}
	if !ValidSource(source) {
		return eris.Wrapf(ErrInvalidSource, "source %q", source)
	}
	p.mu.Lock()
	p.source = source
	p.mu.Unlock()
	return nil
}

// Source returns the current template.
func (p *Proxy) Source() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// URL expands the template for one tile.
func URL(source string, z, x, y int) string {
	r := strings.NewReplacer(
		"{s}", subdomains[(x+y)%len(subdomains)],
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{r}", "",
	)
	return r.Replace(source)
}

func checkTile(z, x, y int) error {
	if z < 0 || z > maxZoom {
		return eris.Wrapf(ErrInvalidTile, "zoom %d", z)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return eris.Wrapf(ErrInvalidTile, "tile %d/%d/%d", z, x, y)
	}
	return nil
}

// Fetch returns a tile from the cache or the upstream server.
func (p *Proxy) Fetch(ctx context.Context, z, x, y int) (Tile, error) {
	if err := checkTile(z, x, y); err != nil {
		return Tile{}, err
	}
	source := p.Source()

	if p.cache != nil {
		if t, ok := p.cache.Get(source, z, x, y); ok {
			metrics.TileRequestsTotal.WithLabelValues("hit").Inc()
			return t, nil
		}
	}
	metrics.TileRequestsTotal.WithLabelValues("miss").Inc()

	url := URL(source, z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Tile{}, eris.Wrap(err, "tiles: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Tile{}, eris.Wrap(err, "tiles: fetch tile")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return Tile{}, eris.Errorf("tiles: upstream returned %d for %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Tile{}, eris.Wrap(err, "tiles: read tile body")
	}

	t := Tile{Data: data, ContentType: contentType(resp.Header.Get("Content-Type"), url)}
	if p.cache != nil {
		p.cache.Put(source, z, x, y, t)
	}
	zap.L().Debug("tiles: fetched tile", zap.String("url", url), zap.Int("bytes", len(data)))
	return t, nil
}

// contentType prefers the upstream header and falls back to the extension.
func contentType(header, url string) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	switch strings.TrimPrefix(path.Ext(strings.SplitN(url, "?", 2)[0]), ".") {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// ServeHTTP serves /{z}/{x}/{y} with an optional extension on y.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var z, x, y int
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}
	last := strings.TrimSuffix(parts[2], path.Ext(parts[2]))
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1]+" "+last, "%d %d %d", &z, &x, &y); err != nil {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}
	p.Serve(w, r, z, x, y)
}

// Serve writes one tile.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, z, x, y int) {
	t, err := p.Fetch(r.Context(), z, x, y)
	if eris.Is(err, ErrInvalidTile) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		zap.L().Error("tiles: fetch failed", zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", t.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(t.Data)
}
