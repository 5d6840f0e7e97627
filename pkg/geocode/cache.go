package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Cache stores resolution outcomes, misses included.
type Cache interface {
	// Get reports hit=false when nothing is stored. A stored miss is a hit
	// with a nil position.
	Get(ctx context.Context, key string) (pos *LatLng, hit bool, err error)
	Set(ctx context.Context, key string, pos *LatLng) error
}

// NormalizeAddress folds case, width and whitespace so equivalent spellings
// share a cache entry.
func NormalizeAddress(address string) string {
	s := norm.NFKC.String(address)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// CacheKey returns the SHA-256 hex of the normalised address.
func CacheKey(address string) string {
	h := sha256.Sum256([]byte(NormalizeAddress(address)))
	return hex.EncodeToString(h[:])
}

type cachedResult struct {
	Found bool    `json:"found"`
	Lat   float64 `json:"lat,omitempty"`
	Lng   float64 `json:"lng,omitempty"`
}

// RedisCache keeps results in Redis with a TTL.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. ttl <= 0 stores entries without expiry.
func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "recordmap:geocode:", ttl: ttl}
}

// NewRedisCacheFromURL parses a redis:// URL and connects lazily.
func NewRedisCacheFromURL(rawURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: parse redis url")
	}
	return NewRedisCache(redis.NewClient(opts), ttl), nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (*LatLng, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "geocode: cache get")
	}
	var r cachedResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, eris.Wrap(err, "geocode: cache decode")
	}
	if !r.Found {
		return nil, true, nil
	}
	return &LatLng{Lat: r.Lat, Lng: r.Lng}, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, pos *LatLng) error {
	r := cachedResult{}
	if pos != nil {
		r = cachedResult{Found: true, Lat: pos.Lat, Lng: pos.Lng}
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "geocode: cache encode")
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return eris.Wrap(err, "geocode: cache set")
	}
	return nil
}

// Close releases the Redis connection.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
