package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jonwraymond/healthops/cache"
	"github.com/jonwraymond/healthops/resilience"
)

// DefaultBaseURL is the public CoinGecko v3 API.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

var (
	// ErrRateLimited is returned when the upstream answers 429.
	ErrRateLimited = errors.New("pricefeed: rate limited by upstream")

	// ErrUpstream is returned for other non-2xx responses.
	ErrUpstream = errors.New("pricefeed: upstream error")

	// ErrUnknownAsset is returned when the response has no price for the
	// requested asset and currency.
	ErrUnknownAsset = errors.New("pricefeed: unknown asset")
)

// Quote is the price of one asset in one currency.
type Quote struct {
	Asset     string    `json:"asset"`
	Currency  string    `json:"currency"`
	Price     float64   `json:"price"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Config configures a Client.
type Config struct {
	// Name identifies the feed in health reports. Default: "pricefeed".
	Name string

	// BaseURL is the API root. Default: DefaultBaseURL
	BaseURL string

	// APIKey is sent as the x-cg-demo-api-key header when set.
	APIKey string

	// Timeout bounds each HTTP attempt. Default: 5s.
	Timeout time.Duration

	// ThrottleWindow is how long a 429 keeps Check degraded. Default: 1m.
	ThrottleWindow time.Duration

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client

	// Executor wraps every price request. Default: DefaultExecutor(Name, Timeout).
	Executor *resilience.Executor

	// Loader caches quotes. Nil disables caching.
	Loader *cache.Loader
}

// Client fetches prices.
type Client struct {
	config    Config
	http      *http.Client
	exec      *resilience.Executor
	now       func() time.Time
	throttled atomic.Int64 // unix nanos of the last 429
}

// New creates a client.
func New(config Config) *Client {
	if config.Name == "" {
		config.Name = "pricefeed"
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.ThrottleWindow <= 0 {
		config.ThrottleWindow = time.Minute
	}

	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	exec := config.Executor
	if exec == nil {
		exec = DefaultExecutor(config.Name, config.Timeout)
	}
	return &Client{config: config, http: hc, exec: exec, now: time.Now}
}

// DefaultExecutor returns the executor used when Config.Executor is nil:
// 10 req/s, 4 concurrent calls, breaker after 5 failures, 3 attempts.
func DefaultExecutor(name string, timeout time.Duration) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:        name + "-limiter",
			Rate:        10,
			Burst:       10,
			WaitOnLimit: true,
			MaxWait:     time.Second,
		})),
		resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: 4,
			MaxWait:       time.Second,
		})),
		resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         name + "-breaker",
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			IsFailure:    IsBreakerFailure,
		})),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Jitter:       true,
		})),
		resilience.WithTimeout(timeout),
	)
}

// IsBreakerFailure reports whether err should count against the breaker.
// Throttling, unknown assets and caller cancellation do not.
func IsBreakerFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrRateLimited) &&
		!errors.Is(err, ErrUnknownAsset) &&
		!errors.Is(err, context.Canceled)
}

// Price returns the price of asset in currency. Both are matched
// case-insensitively.
func (c *Client) Price(ctx context.Context, asset, currency string) (Quote, error) {
	asset = strings.ToLower(strings.TrimSpace(asset))
	currency = strings.ToLower(strings.TrimSpace(currency))
	if asset == "" || currency == "" {
		return Quote{}, resilience.Permanent(fmt.Errorf("%w: asset and currency are required", ErrUnknownAsset))
	}

	fetch := func(ctx context.Context) (Quote, error) {
		return resilience.Call(ctx, c.exec, func(ctx context.Context) (Quote, error) {
			return c.fetchPrice(ctx, asset, currency)
		})
	}
	if c.config.Loader == nil {
		return fetch(ctx)
	}
	key := map[string]string{"asset": asset, "currency": currency}
	q, _, err := cache.GetOrLoadJSON(ctx, c.config.Loader, "pricefeed.price", key, fetch)
	return q, err
}

func (c *Client) fetchPrice(ctx context.Context, asset, currency string) (Quote, error) {
	q := url.Values{"ids": {asset}, "vs_currencies": {currency}}
	body, err := c.get(ctx, "/simple/price?"+q.Encode())
	if err != nil {
		return Quote{}, err
	}

	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return Quote{}, fmt.Errorf("pricefeed: decode price response: %w", err)
	}
	price, ok := prices[asset][currency]
	if !ok {
		return Quote{}, resilience.Permanent(fmt.Errorf("%w: %s/%s", ErrUnknownAsset, asset, currency))
	}
	return Quote{Asset: asset, Currency: currency, Price: price, FetchedAt: c.now().UTC()}, nil
}

// Ping calls the upstream /ping endpoint directly, bypassing the executor
// so health checks neither spend rate-limit tokens nor trip the breaker.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	_, err := c.get(ctx, "/ping")
	return err
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("pricefeed: build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("pricefeed: read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.throttled.Store(c.now().UnixNano())
		return nil, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, resilience.Permanent(fmt.Errorf("%w: %s returned %d", ErrUpstream, path, resp.StatusCode))
	}
	return body, nil
}

// Executor returns the executor wrapping price requests.
func (c *Client) Executor() *resilience.Executor {
	return c.exec
}

func (c *Client) recentlyThrottled() bool {
	last := c.throttled.Load()
	return last != 0 && c.now().Sub(time.Unix(0, last)) < c.config.ThrottleWindow
}
