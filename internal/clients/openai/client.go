// Package openai provides a client for OpenAI-compatible chat completion APIs.
// The same client serves xAI, which exposes the same wire format.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"golang.org/x/time/rate"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
)

const (
	DefaultBaseURL   = "https://api.openai.com/v1"
	XAIBaseURL       = "https://api.x.ai/v1"
	DefaultModel     = "gpt-4o-mini"
	DefaultTimeout   = 60 * time.Second
	DefaultRateLimit = 60 // requests per minute
)

// Client implements interfaces.CompletionClient on the official SDK
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	logger  *common.Logger
	limiter *rate.Limiter
	api     sdk.Client
}

var _ interfaces.CompletionClient = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
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

// WithTimeout sets the HTTP timeout
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

// NewClient creates a new chat completions client. Retries are left to the
// caller, so the SDK's own retry loop is disabled.
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

	c.api = sdk.NewClient(
		option.WithBaseURL(c.baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: c.timeout}),
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
	return fmt.Sprintf("chat completion error: %s (status: %d)", e.Message, e.StatusCode)
}

// toAPIError keeps the status code of SDK errors visible to callers.
func toAPIError(err error) error {
	var sdkErr *sdk.Error
	if errors.As(err, &sdkErr) {
		msg := sdkErr.Message
		if msg == "" {
			msg = sdkErr.RawJSON()
		}
		return &APIError{StatusCode: sdkErr.StatusCode, Message: msg}
	}
	return err
}

// Complete sends one chat completion and returns the first choice's content
func (c *Client) Complete(ctx context.Context, req interfaces.CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	params := sdk.ChatCompletionNewParams{Model: c.model}
	if req.System != "" {
		params.Messages = append(params.Messages, sdk.SystemMessage(req.System))
	}
	params.Messages = append(params.Messages, sdk.UserMessage(req.Prompt))
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if req.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	c.logger.Debug().Str("model", c.model).Str("url", c.baseURL).Msg("Chat completion request")

	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", toAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping sends a minimal prompt and requires a non-empty reply
func (c *Client) Ping(ctx context.Context) error {
	text, err := c.Complete(ctx, interfaces.CompletionRequest{Prompt: "ping", MaxTokens: 5})
	if err != nil {
		return err
	}
	if text == "" {
		return fmt.Errorf("empty ping reply")
	}
	return nil
}
