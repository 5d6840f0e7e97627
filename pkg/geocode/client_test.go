package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recordmap/internal/resilience"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb, time.Hour), mr
}

func TestClient_ResolveUsesProvider(t *testing.T) {
	static := NewStatic(map[string]LatLng{"1 Main St": {Lat: 1, Lng: 2}})
	c := NewClient(static, WithDelay(0))

	pos, err := c.Resolve(context.Background(), "  1 main st ")
	require.NoError(t, err)
	assert.Equal(t, &LatLng{Lat: 1, Lng: 2}, pos)

	pos, err = c.Resolve(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, pos)

	pos, err = c.Resolve(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.Len(t, static.Calls(), 2, "blank addresses never reach the provider")
}

func TestClient_CacheHitsAndMisses(t *testing.T) {
	cache, mr := newTestCache(t)
	static := NewStatic(map[string]LatLng{"1 Main St": {Lat: 1, Lng: 2}})
	c := NewClient(static, WithDelay(0), WithCache(cache))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		pos, err := c.Resolve(ctx, "1 Main St")
		require.NoError(t, err)
		assert.Equal(t, &LatLng{Lat: 1, Lng: 2}, pos)

		pos, err = c.Resolve(ctx, "Nowhere")
		require.NoError(t, err)
		assert.Nil(t, pos)
	}
	assert.Len(t, static.Calls(), 2, "second round is served from the cache")
	assert.True(t, mr.Exists("recordmap:geocode:"+CacheKey("1 MAIN ST")))
	ttl := mr.TTL("recordmap:geocode:" + CacheKey("nowhere"))
	assert.Equal(t, time.Hour, ttl)
}

func TestClient_CacheFailureFallsThrough(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	static := NewStatic(map[string]LatLng{"a": {Lat: 3, Lng: 4}})
	c := NewClient(static, WithDelay(0), WithCache(cache))
	pos, err := c.Resolve(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, &LatLng{Lat: 3, Lng: 4}, pos)
}

type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) Lookup(context.Context, string) (*LatLng, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, resilience.NewTransientError(errors.New("busy"), 503)
	}
	return &LatLng{Lat: 5, Lng: 6}, nil
}

func TestClient_RetriesTransient(t *testing.T) {
	p := &flakyProvider{failures: 1}
	c := NewClient(p, WithDelay(0), WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}))
	pos, err := c.Resolve(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, &LatLng{Lat: 5, Lng: 6}, pos)
	assert.Equal(t, 2, p.calls)

	p = &flakyProvider{failures: 5}
	c = NewClient(p, WithDelay(0), WithRetry(resilience.NoRetry()))
	_, err = c.Resolve(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestClient_DelaySpacesRequests(t *testing.T) {
	static := NewStatic(nil)
	c := NewClient(static, WithDelay(30*time.Millisecond))
	start := time.Now()
	for _, a := range []string{"a", "b", "c"} {
		_, err := c.Resolve(context.Background(), a)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "123 main st springfield", NormalizeAddress("  123  Main ST\tSpringfield "))
	assert.Equal(t, "abc 1", NormalizeAddress("ＡＢＣ　１"))
	assert.Equal(t, CacheKey("Main St"), CacheKey("main   st"))
	assert.Len(t, CacheKey("x"), 64)
}
