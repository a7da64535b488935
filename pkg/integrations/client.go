package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
	"golang.org/x/time/rate"

	"github.com/matzehuels/supplychain/pkg/cache"
	apperrors "github.com/matzehuels/supplychain/pkg/errors"
	"github.com/matzehuels/supplychain/pkg/httputil"
	"github.com/matzehuels/supplychain/pkg/observability"
)

// DefaultBreakerThreshold is the number of consecutive transient failures
// after which the client stops sending requests for a while.
const DefaultBreakerThreshold = 5

// Client provides shared HTTP functionality for registry API clients.
// It handles caching, retries, request pacing and common request headers.
//
// All requests made through one Client share a single rate limiter, so the
// configured minimum interval holds no matter how many goroutines use it.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	namespace string
	ttl       time.Duration
	headers   map[string]string
	policy    httputil.Policy
	limiter   *rate.Limiter
	breaker   *circuit.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithPolicy sets the retry and pacing policy.
func WithPolicy(p httputil.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithBreakerThreshold sets how many consecutive transient failures open the
// circuit breaker. Zero disables the breaker.
func WithBreakerThreshold(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.breaker = nil
			return
		}
		c.breaker = newBreaker(n)
	}
}

// NewClient creates a Client. Cache keys are prefixed with namespace and
// stored for ttl. Headers are applied to all requests; pass nil if none are
// needed.
func NewClient(backend cache.Cache, namespace string, ttl time.Duration, headers map[string]string, opts ...Option) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	c := &Client{
		http:      NewHTTPClient(),
		cache:     backend,
		namespace: namespace,
		ttl:       ttl,
		headers:   headers,
		policy:    httputil.DefaultPolicy(),
		breaker:   newBreaker(DefaultBreakerThreshold),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = newLimiter(c.policy.MinInterval)
	return c
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func newBreaker(threshold int) *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(int64(threshold)),
	})
}

// Cached retrieves a value from cache or executes fetch and caches the result.
// If refresh is true, the cache is bypassed and fetch is always called.
// The fetch function should populate v; it is retried under the client's
// policy, and on success v is stored in the cache as JSON.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	key = c.namespace + key
	if !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok && json.Unmarshal(data, v) == nil {
			observability.Cache().OnCacheHit(ctx, c.namespace)
			return nil
		}
		observability.Cache().OnCacheMiss(ctx, c.namespace)
	}
	if err := httputil.Retry(ctx, c.policy, fetch); err != nil {
		return err
	}
	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			observability.Cache().OnCacheSet(ctx, c.namespace, len(data))
		}
	}
	return nil
}

// Get performs a single HTTP GET request and JSON-decodes the response into v.
// Wrap calls in [Client.Cached] to retry.
func (c *Client) Get(ctx context.Context, url string, v any) error {
	return c.GetWithHeaders(ctx, url, nil, v)
}

// GetWithHeaders performs an HTTP GET with additional headers merged with defaults.
// Request-specific headers override client defaults for the same key.
func (c *Client) GetWithHeaders(ctx context.Context, url string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, val := range c.headers {
		req.Header.Set(k, val)
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	if c.breaker != nil && !c.breaker.Ready() {
		return fmt.Errorf("%w: %s", ErrUnavailable, req.URL.Host)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		c.fail()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		if httputil.IsRetryable(err) {
			c.fail()
		} else {
			c.succeed()
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		c.fail()
		return httputil.Retryable(fmt.Errorf("%w: decode response: %v", ErrNetwork, err))
	}
	c.succeed()
	return nil
}

func (c *Client) fail() {
	if c.breaker != nil {
		c.breaker.Fail()
	}
}

func (c *Client) succeed() {
	if c.breaker != nil {
		c.breaker.Success()
	}
}

// BreakerOpen reports whether the circuit breaker is currently rejecting
// requests.
func (c *Client) BreakerOpen() bool {
	return c.breaker != nil && c.breaker.Tripped()
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		rl := &apperrors.RateLimitedError{}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			rl.RetryAfter = secs
		}
		return httputil.RetryableAfter(fmt.Errorf("%w: %w", ErrNetwork, rl), time.Duration(rl.RetryAfter)*time.Second)
	case code >= 500:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrClient, code)
	}
}

// IsRateLimited reports whether err came from a 429 response.
func IsRateLimited(err error) bool {
	var rl *apperrors.RateLimitedError
	return errors.As(err, &rl)
}
