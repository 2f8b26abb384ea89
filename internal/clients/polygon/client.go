// Package polygon provides a rate-limited client for the Polygon.io v2 REST API
package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

const (
	DefaultBaseURL    = "https://api.polygon.io/v2"
	DefaultTimeout    = 30 * time.Second
	DefaultRateLimit  = 5 // requests per minute, free tier
	DefaultMaxRetries = 3

	defaultRetryAfter = 5 * time.Second
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Client implements interfaces.MarketDataClient
type Client struct {
	baseURL    string
	refURL     string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	logger     *common.Logger
	limiter    *rate.Limiter
	sleep      Sleeper
}

var _ interfaces.MarketDataClient = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithReferenceURL sets the root for reference endpoints. By default a base
// URL ending in /v2 maps to the matching /v3 root.
func WithReferenceURL(refURL string) ClientOption {
	return func(c *Client) {
		c.refURL = strings.TrimRight(refURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the admission rate in requests per minute. Zero or
// negative disables limiting.
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMaxRetries sets how many times a failed attempt is retried
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleep replaces the backoff sleeper
func WithSleep(fn Sleeper) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// NewClient creates a new Polygon client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		logger:     common.NewSilentLogger(),
		sleep:      sleepCtx,
	}
	WithRateLimit(DefaultRateLimit)(c)

	for _, opt := range opts {
		opt(c)
	}
	if c.refURL == "" {
		c.refURL = c.baseURL
		if root, ok := strings.CutSuffix(c.baseURL, "/v2"); ok {
			c.refURL = root + "/v3"
		}
	}

	return c
}

// APIError represents a non-200 upstream response
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Polygon API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// IsRateLimited reports whether err is a final 429 from the upstream.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func retryAfter(h string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}

// get performs a rate-limited GET with bounded retries and decodes a 200
// body into result. 429s, 5xx and transport errors are retried with
// exponential backoff; other statuses return immediately.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	return c.getFrom(ctx, c.baseURL, path, params, result)
}

func (c *Client) getFrom(ctx context.Context, root, path string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", root, path, params.Encode())

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		status, body, header, err := c.attempt(ctx, reqURL)

		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fmt.Errorf("request %s: %w", path, ctx.Err())
			}
			if attempt >= c.maxRetries {
				return fmt.Errorf("request %s: %w", path, err)
			}
			wait = backoff(attempt)
			c.logger.Warn().Str("endpoint", path).Int("attempt", attempt+1).Err(err).Msg("Polygon request failed, retrying")

		case status == http.StatusTooManyRequests:
			if attempt >= c.maxRetries {
				return &APIError{StatusCode: status, Message: "rate limited", Endpoint: path}
			}
			wait = backoff(attempt) + retryAfter(header.Get("Retry-After"))
			c.logger.Warn().Str("endpoint", path).Int("attempt", attempt+1).Dur("wait", wait).Msg("Polygon rate limited, backing off")

		case status >= 500:
			if attempt >= c.maxRetries {
				return &APIError{StatusCode: status, Message: string(body), Endpoint: path}
			}
			wait = backoff(attempt)
			c.logger.Warn().Str("endpoint", path).Int("status", status).Int("attempt", attempt+1).Msg("Polygon server error, retrying")

		case status != http.StatusOK:
			return &APIError{StatusCode: status, Message: string(body), Endpoint: path}

		default:
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}

		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry wait: %w", err)
		}
	}
}

func (c *Client) attempt(ctx context.Context, reqURL string) (int, []byte, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

// absent converts a final upstream error into an empty result. Transport
// errors and cancellation are still reported.
func absent(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return nil
	}
	return err
}

type aggBar struct {
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
	T int64   `json:"t"`
}

func (b aggBar) toModel() models.Bar {
	return models.Bar{Timestamp: b.T, Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V}
}

type aggsResponse struct {
	Ticker  string   `json:"ticker"`
	Results []aggBar `json:"results"`
}

// GetAggregates retrieves bars for [start, end] at the given granularity.
// A missing results array is an empty slice.
func (c *Client) GetAggregates(ctx context.Context, symbol string, granularity models.Granularity, start, end time.Time) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("adjusted", "true")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	path := fmt.Sprintf("/aggs/ticker/%s/range/1/%s/%s/%s",
		url.PathEscape(strings.ToUpper(symbol)), granularity,
		start.Format("2006-01-02"), end.Format("2006-01-02"))

	var resp aggsResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, len(resp.Results))
	for i, r := range resp.Results {
		bars[i] = r.toModel()
	}
	return bars, nil
}

type nbboResponse struct {
	Results *struct {
		Last *struct {
			Bid float64 `json:"bid"`
			Ask float64 `json:"ask"`
			T   int64   `json:"t"`
		} `json:"last"`
	} `json:"results"`
}

// GetLatestQuote retrieves the latest NBBO, or nil when none is available
func (c *Client) GetLatestQuote(ctx context.Context, symbol string) (*models.NBBO, error) {
	path := "/last/nbbo/" + url.PathEscape(strings.ToUpper(symbol))

	var resp nbboResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, absent(err)
	}
	if resp.Results == nil || resp.Results.Last == nil {
		return nil, nil
	}

	last := resp.Results.Last
	return &models.NBBO{Bid: last.Bid, Ask: last.Ask, Timestamp: last.T}, nil
}

// GetPreviousClose retrieves the prior session's bar, or nil
func (c *Client) GetPreviousClose(ctx context.Context, symbol string) (*models.PreviousClose, error) {
	params := url.Values{}
	params.Set("adjusted", "true")
	path := fmt.Sprintf("/aggs/ticker/%s/prev", url.PathEscape(strings.ToUpper(symbol)))

	var resp aggsResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, absent(err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	r := resp.Results[0]
	from := time.UnixMilli(r.T).UTC()
	ticker := resp.Ticker
	if ticker == "" {
		ticker = strings.ToUpper(symbol)
	}
	return &models.PreviousClose{
		Symbol: ticker,
		Open:   r.O,
		High:   r.H,
		Low:    r.L,
		Close:  r.C,
		Volume: r.V,
		From:   from,
		To:     from.Add(24 * time.Hour),
	}, nil
}

// GetTickerDetails retrieves reference data from the v3 tickers endpoint, or nil
func (c *Client) GetTickerDetails(ctx context.Context, symbol string) (*models.TickerDetails, error) {
	path := "/reference/tickers/" + url.PathEscape(strings.ToUpper(symbol))

	var resp struct {
		Results *models.TickerDetails `json:"results"`
	}
	if err := c.getFrom(ctx, c.refURL, path, nil, &resp); err != nil {
		return nil, absent(err)
	}
	return resp.Results, nil
}
