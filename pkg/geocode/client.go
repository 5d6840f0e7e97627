package geocode

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/recordmap/internal/resilience"
)

// DefaultDelay is the pause between provider requests.
const DefaultDelay = time.Second

// Option configures a Client.
type Option func(*Client)

// WithDelay sets the minimum spacing between provider requests. Zero or less
// disables the delay.
func WithDelay(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCache enables a result cache. Cache hits do not wait for the delay.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithRetry sets the retry policy for transient provider failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// Client is the Resolver used by the scanner: one provider, a fixed
// inter-request delay, optional caching and retries.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	cache    Cache
	retry    resilience.RetryConfig
}

var _ Resolver = (*Client)(nil)

// NewClient wraps provider.
func NewClient(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(DefaultDelay), 1),
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(provider.Name(), "lookup")
	}
	return c
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Resolve implements Resolver. Blank addresses resolve to nil without a
// request.
func (c *Client) Resolve(ctx context.Context, address string) (*LatLng, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	log := zap.L().With(zap.String("provider", c.provider.Name()))

	key := CacheKey(address)
	if c.cache != nil {
		pos, hit, err := c.cache.Get(ctx, key)
		if err != nil {
			log.Warn("geocode: cache read failed", zap.Error(err))
		} else if hit {
			log.Debug("geocode: cache hit", zap.String("key", key[:12]), zap.Bool("found", pos != nil))
			return pos, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: wait for delay")
	}

	pos, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*LatLng, error) {
		return c.provider.Lookup(ctx, address)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: %s lookup", c.provider.Name())
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, pos); err != nil {
			log.Warn("geocode: cache write failed", zap.Error(err))
		}
	}
	return pos, nil
}
