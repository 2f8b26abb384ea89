// Package claude provides a client for the Anthropic Messages API
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultTimeout   = 60 * time.Second
	DefaultRateLimit = 50 // requests per minute
	DefaultMaxTokens = 1024
)

// Client implements interfaces.CompletionClient on the official SDK
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	logger  *common.Logger
	limiter *rate.Limiter
	api     anthropic.Client
}

var _ interfaces.CompletionClient = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the API host. A trailing /v1 is dropped since the SDK
// adds the version to every path.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
		}
	}
}

// WithModel sets the model
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRateLimit sets requests per minute
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// NewClient creates a new Messages API client. Credentials come only from
// apiKey; the SDK's environment and profile lookup is skipped.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		logger:  common.NewSilentLogger(),
	}
	WithRateLimit(DefaultRateLimit)(c)

	for _, opt := range opts {
		opt(c)
	}

	c.api = anthropic.NewClient(
		option.WithoutEnvironmentDefaults(),
		option.WithBaseURL(c.baseURL),
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(c.timeout),
		option.WithMaxRetries(0),
	)
	return c
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// APIError represents a non-200 response
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Anthropic API error: %s (status: %d)", e.Message, e.StatusCode)
}

func toAPIError(err error) error {
	var sdkErr *anthropic.Error
	if !errors.As(err, &sdkErr) {
		return err
	}
	msg := sdkErr.RawJSON()
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(msg), &envelope) == nil && envelope.Error.Message != "" {
		msg = envelope.Error.Message
	}
	return &APIError{StatusCode: sdkErr.StatusCode, Message: msg}
}

// Complete sends one message and returns the concatenated text blocks.
// The Messages API has no JSON response mode, so req.JSON only shapes the prompt.
func (c *Client) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	prompt := req.Prompt
	if req.JSON {
		prompt += "\n\nRespond with a single JSON object only."
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	c.logger.Debug().Str("model", c.model).Msg("Anthropic messages request")

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", toAPIError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Ping sends a minimal prompt and requires a non-empty reply
func (c *Client) Ping(ctx context.Context) error {
	text, err := c.Complete(ctx, interfaces.CompletionRequest{Prompt: "ping", MaxTokens: 10})
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("empty ping reply")
	}
	return nil
}
