package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"evo-trading-bot/internal/resilience"
)

// Client fetches historical bars over HTTP from a kline-style endpoint.
// Every request goes through the rate limiter, the circuit breaker and
// the retry policy, in that order.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *resilience.RateLimiter
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
}

// ClientConfig holds data client configuration
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RateLimit      int // requests per minute
	Breaker        *resilience.BreakerConfig
	Retry          *resilience.RetryConfig
}

// NewClient creates a new historical data client
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}
	breakerCfg := cfg.Breaker
	if breakerCfg == nil {
		breakerCfg = resilience.DefaultBreakerConfig("market-data")
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = resilience.DefaultRetryConfig()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    resilience.NewRateLimiter(rateLimit, time.Minute),
		breaker:    resilience.NewCircuitBreaker(breakerCfg),
		retry:      retryCfg,
	}
}

// BreakerStats exposes the data-path breaker state for the safety endpoint
func (c *Client) BreakerStats() map[string]interface{} {
	return c.breaker.Stats()
}

// OnBreakerStateChange registers a callback for breaker transitions
func (c *Client) OnBreakerStateChange(fn func(from, to resilience.BreakerState)) {
	c.breaker.OnStateChange(fn)
}

// Fetch implements Fetcher
func (c *Client) Fetch(ctx context.Context, req FetchRequest) ([]Bar, error) {
	if err := c.limiter.Allow(req.Symbol); err != nil {
		return nil, err
	}

	var bars []Bar
	err := resilience.Retry(ctx, c.retry, func(ctx context.Context) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			fetched, err := c.fetchKlines(ctx, req)
			if err != nil {
				return err
			}
			bars = fetched
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}

// fetchKlines performs one HTTP round trip against the kline endpoint
func (c *Client) fetchKlines(ctx context.Context, req FetchRequest) ([]Bar, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("interval", req.Interval)
	params.Set("startTime", strconv.FormatInt(req.StartDate.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(req.EndDate.UnixMilli(), 10))
	params.Set("limit", "1000")

	endpoint := fmt.Sprintf("%s/api/v1/klines?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error fetching klines: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var rawKlines [][]interface{}
	if err := json.Unmarshal(body, &rawKlines); err != nil {
		return nil, fmt.Errorf("error parsing klines: %w", err)
	}

	bars := make([]Bar, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 6 {
			continue
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			continue
		}
		bars = append(bars, Bar{
			OpenTime: time.UnixMilli(int64(openTime)),
			Open:     parseFloat(raw[1]),
			High:     parseFloat(raw[2]),
			Low:      parseFloat(raw[3]),
			Close:    parseFloat(raw[4]),
			Volume:   parseFloat(raw[5]),
		})
	}

	return bars, nil
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
