package billingclient

import (
	"context"
	"net/http"
)

// Client talks to the payments provider's REST API. Outbound calls pass
// through the rate limiter, circuit breaker, and retry policy in that
// order; read results may be served from the TTL cache.
type Client struct {
	cfg     Config
	http    *http.Client
	retry   RetryPolicy
	cache   *Cache
	limiter *RateLimiter
	breaker CircuitBreaker
}

func NewFromEnv() *Client {
	return New(LoadFromEnv())
}

func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: RetryPolicy{
			MaxRetries: cfg.RetryCount,
			BaseDelay:  cfg.RetryDelay,
		},
		cache:   NewCache(cfg.CacheSize, cfg.CacheTTL),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
	}
}

// call runs one API request through the protection stack. safe marks the
// request as idempotent and therefore retryable.
func (c *Client) call(ctx context.Context, safe bool, method, path string, body, out interface{}) error {
	c.limiter.Wait(ctx)
	return c.breaker.Execute(func() error {
		return c.retry.Do(ctx, safe, func() error {
			return c.doRequest(ctx, method, path, body, out)
		})
	})
}
