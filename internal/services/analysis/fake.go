package analysis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// FakeProvider is a deterministic in-process provider for local runs and tests.
// Scores follow the day's percent change: 60 + 10 points per percent.
type FakeProvider struct {
	name    string
	healthy bool
	err     error

	mu    sync.Mutex
	calls map[string]int
}

var _ interfaces.AnalysisProvider = (*FakeProvider)(nil)

// FakeOption configures a FakeProvider
type FakeOption func(*FakeProvider)

// Unhealthy makes HealthCheck fail
func Unhealthy() FakeOption {
	return func(f *FakeProvider) {
		f.healthy = false
	}
}

// FailWith makes every generate call return err
func FailWith(err error) FakeOption {
	return func(f *FakeProvider) {
		f.err = err
	}
}

// NewFakeProvider creates a healthy fake registered under name.
func NewFakeProvider(name string, opts ...FakeOption) *FakeProvider {
	f := &FakeProvider{name: name, healthy: true, calls: make(map[string]int)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FakeProvider) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

// Calls returns how many times op ("score", "explanation", "sentiment") ran.
func (f *FakeProvider) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeProvider) Name() string { return f.name }

func (f *FakeProvider) GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error) {
	f.record("score")
	if f.err != nil {
		return nil, wrapError(f.name, CodeScoreFailed, "failed to generate score", f.err)
	}
	score := validateScore(60 + data.ChangePercent*10)
	risk := models.LevelMedium
	if data.Volatility != nil {
		switch v := *data.Volatility; {
		case v < 1:
			risk = models.LevelLow
		case v >= 3:
			risk = models.LevelHigh
		}
	}
	return &models.AnalysisResult{
		Symbol:     strings.ToUpper(symbol),
		Score:      score,
		Confidence: models.LevelMedium,
		Signal:     models.SignalForScore(score),
		RiskLevel:  risk,
		Factors:    []string{fmt.Sprintf("day change %+.2f%%", data.ChangePercent)},
		AnalyzedAt: time.Now(),
		Provider:   f.name,
	}, nil
}

func (f *FakeProvider) GenerateExplanation(ctx context.Context, symbol string, analysis models.AnalysisResult) (string, error) {
	f.record("explanation")
	if f.err != nil {
		return "", wrapError(f.name, CodeExplanationFailed, "failed to generate explanation", f.err)
	}
	return fmt.Sprintf("%s scores %d/100, a %s signal with %s risk.",
		strings.ToUpper(symbol), analysis.Score, analysis.Signal, analysis.RiskLevel), nil
}

func (f *FakeProvider) GenerateSentiment(ctx context.Context, symbol, marketContext string) (*models.Sentiment, error) {
	f.record("sentiment")
	if f.err != nil {
		return nil, wrapError(f.name, CodeSentimentFailed, "failed to generate sentiment", f.err)
	}
	label := models.SentimentNeutral
	lower := strings.ToLower(marketContext)
	switch {
	case strings.Contains(lower, "rally") || strings.Contains(lower, "up"):
		label = models.SentimentBullish
	case strings.Contains(lower, "selloff") || strings.Contains(lower, "down"):
		label = models.SentimentBearish
	}
	return &models.Sentiment{
		Sentiment:  label,
		Confidence: 0.7,
		Reasons:    []string{"derived from supplied context"},
		Timeframe:  models.TimeframeShort,
	}, nil
}

func (f *FakeProvider) HealthCheck(ctx context.Context) bool {
	return f.healthy
}
