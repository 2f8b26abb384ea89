package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// Sampling settings per task.
const (
	scoreMaxTokens         = 500
	scoreTemperature       = 0.3
	explanationMaxTokens   = 300
	explanationTemperature = 0.7
	sentimentMaxTokens     = 300
	sentimentTemperature   = 0.4
)

const fallbackExplanation = "Unable to generate explanation."

// ChatProvider implements interfaces.AnalysisProvider over any completion client.
type ChatProvider struct {
	name          string
	client        interfaces.CompletionClient
	sentimentOnly bool
	now           func() time.Time
}

var _ interfaces.AnalysisProvider = (*ChatProvider)(nil)

// ProviderOption configures a ChatProvider
type ProviderOption func(*ChatProvider)

// SentimentOnly restricts the provider to sentiment; score and explanation
// return NOT_SUPPORTED.
func SentimentOnly() ProviderOption {
	return func(p *ChatProvider) {
		p.sentimentOnly = true
	}
}

// WithProviderClock replaces time.Now for AnalyzedAt stamps
func WithProviderClock(now func() time.Time) ProviderOption {
	return func(p *ChatProvider) {
		p.now = now
	}
}

// NewChatProvider wraps a completion client under the given provider id.
func NewChatProvider(name string, client interfaces.CompletionClient, opts ...ProviderOption) *ChatProvider {
	p := &ChatProvider{name: name, client: client, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ChatProvider) Name() string { return p.name }

func (p *ChatProvider) notSupported() error {
	return &AIError{
		Provider: p.name,
		Code:     CodeNotSupported,
		Message:  p.name + " provider is for sentiment analysis only",
		Err:      ErrNotSupported,
	}
}

func (p *ChatProvider) GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error) {
	if p.sentimentOnly {
		return nil, p.notSupported()
	}

	text, err := p.client.Complete(ctx, interfaces.CompletionRequest{
		System:      scoreSystemPrompt,
		Prompt:      buildScorePrompt(symbol, data),
		MaxTokens:   scoreMaxTokens,
		Temperature: scoreTemperature,
		JSON:        true,
	})
	if err != nil {
		return nil, wrapError(p.name, CodeScoreFailed, "failed to generate score", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, &AIError{Provider: p.name, Code: CodeNoContent, Message: "empty response from API"}
	}

	result, ok := ValidateScoreReply(symbol, text, p.now())
	if !ok {
		return nil, &AIError{Provider: p.name, Code: CodeNoJSON, Message: "no JSON found in response"}
	}
	result.Provider = p.name
	return result, nil
}

func (p *ChatProvider) GenerateExplanation(ctx context.Context, symbol string, analysis models.AnalysisResult) (string, error) {
	if p.sentimentOnly {
		return "", p.notSupported()
	}

	text, err := p.client.Complete(ctx, interfaces.CompletionRequest{
		System:      explanationSystemPrompt,
		Prompt:      buildExplanationPrompt(symbol, analysis),
		MaxTokens:   explanationMaxTokens,
		Temperature: explanationTemperature,
	})
	if err != nil {
		return "", wrapError(p.name, CodeExplanationFailed, "failed to generate explanation", err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return fallbackExplanation, nil
	}
	return text, nil
}

func (p *ChatProvider) GenerateSentiment(ctx context.Context, symbol, marketContext string) (*models.Sentiment, error) {
	text, err := p.client.Complete(ctx, interfaces.CompletionRequest{
		System:      sentimentSystemPrompt,
		Prompt:      buildSentimentPrompt(symbol, marketContext),
		MaxTokens:   sentimentMaxTokens,
		Temperature: sentimentTemperature,
		JSON:        true,
	})
	if err != nil {
		return nil, wrapError(p.name, CodeSentimentFailed, "failed to generate sentiment", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, &AIError{Provider: p.name, Code: CodeNoContent, Message: "empty response from API"}
	}

	sentiment, ok := ValidateSentimentReply(text)
	if !ok {
		return nil, &AIError{Provider: p.name, Code: CodeNoJSON, Message: "no JSON found in response"}
	}
	return sentiment, nil
}

// HealthCheck pings the model and reports whether it answered.
func (p *ChatProvider) HealthCheck(ctx context.Context) bool {
	return p.client.Ping(ctx) == nil
}
