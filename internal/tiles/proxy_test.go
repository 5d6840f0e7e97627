package tiles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upstream(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/fail/1/0/0.png" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("tile:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://b.tile.openstreetmap.org/3/1/0.png", URL(DefaultSource, 3, 1, 0))
	assert.Equal(t, "https://a.tile.openstreetmap.org/3/1/2.png", URL(DefaultSource, 3, 1, 2))
	assert.Equal(t, "https://t/4/5/6.png", URL("https://t/{z}/{x}/{y}{r}.png", 4, 5, 6))
}

func TestNewProxy_ValidatesSource(t *testing.T) {
	p, err := NewProxy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSource, p.Source())

	_, err = NewProxy("https://tiles.example.com/{z}/{x}.png")
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestProxy_FetchAndCache(t *testing.T) {
	var calls atomic.Int32
	srv := upstream(t, &calls)
	cache := NewCache(10, time.Minute)
	p, err := NewProxy(srv.URL+"/{z}/{x}/{y}.png", WithCache(cache))
	require.NoError(t, err)

	tile, err := p.Fetch(context.Background(), 5, 10, 11)
	require.NoError(t, err)
	assert.Equal(t, "tile:/5/10/11.png", string(tile.Data))
	assert.Equal(t, "image/png", tile.ContentType)

	_, err = p.Fetch(context.Background(), 5, 10, 11)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)

	require.NoError(t, p.SetSource(srv.URL+"/other/{z}/{x}/{y}.png"))
	_, err = p.Fetch(context.Background(), 5, 10, 11)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestProxy_FetchErrors(t *testing.T) {
	var calls atomic.Int32
	srv := upstream(t, &calls)
	p, err := NewProxy(srv.URL + "/fail/{z}/{x}/{y}.png")
	require.NoError(t, err)

	_, err = p.Fetch(context.Background(), 1, 0, 0)
	assert.Error(t, err)

	_, err = p.Fetch(context.Background(), 1, 2, 0)
	assert.ErrorIs(t, err, ErrInvalidTile)
	_, err = p.Fetch(context.Background(), 23, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidTile)
	assert.Equal(t, int32(1), calls.Load())
}

func TestProxy_ServeHTTP(t *testing.T) {
	var calls atomic.Int32
	srv := upstream(t, &calls)
	p, err := NewProxy(srv.URL + "/{z}/{x}/{y}.png")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/2/1/3.png", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tile:/2/1/3.png", rec.Body.String())

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/2/x/3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/2/9/3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/webp", contentType("", "https://x/1/2/3.webp"))
	assert.Equal(t, "image/jpeg", contentType("text/plain", "https://x/1/2/3.jpg?key=a"))
	assert.Equal(t, "image/png", contentType("image/png; charset=binary", "https://x/1/2/3"))
	assert.Equal(t, "application/octet-stream", contentType("", "https://x/1/2/3"))
}

func TestCache_Eviction(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Put("s", 1, 0, 0, Tile{Data: []byte("a")})
	c.Put("s", 1, 0, 1, Tile{Data: []byte("b")})
	_, ok := c.Get("s", 1, 0, 0)
	require.True(t, ok)
	c.Put("s", 1, 1, 1, Tile{Data: []byte("c")})

	_, ok = c.Get("s", 1, 0, 1)
	assert.False(t, ok)
	_, ok = c.Get("s", 1, 0, 0)
	assert.True(t, ok)

	c.Purge()
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_Expiry(t *testing.T) {
	c := NewCache(2, 20*time.Millisecond)
	c.Put("s", 1, 0, 0, Tile{Data: []byte("a")})
	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get("s", 1, 0, 0)
	assert.False(t, ok)
}
