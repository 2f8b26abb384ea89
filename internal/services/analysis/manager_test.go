package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

func hybridConfig() common.AIConfig {
	return common.AIConfig{
		Mode:        ModeHybrid,
		Scoring:     ProviderOpenAI,
		Explanation: ProviderClaude,
		Sentiment:   ProviderXAI,
		Fallback:    ProviderOpenAI,
	}
}

func TestManager_RepointsEveryRoleToOnlyHealthyProvider(t *testing.T) {
	claude := NewFakeProvider(ProviderClaude)
	var sunk []RoutingEvent
	m := NewManager(hybridConfig(),
		WithProvider(NewFakeProvider(ProviderOpenAI, Unhealthy())),
		WithProvider(claude),
		WithEventSink(func(ev RoutingEvent) { sunk = append(sunk, ev) }),
	)

	require.NoError(t, m.Init(context.Background()))

	for _, role := range []Role{RoleScoring, RoleExplanation, RoleSentiment, RoleFallback} {
		p, err := m.ProviderFor(role)
		require.NoError(t, err, role)
		assert.Same(t, claude, p, role)
	}

	events := m.Events()
	require.Len(t, events, 3)
	assert.Equal(t, RoleFallback, events[0].Role)
	assert.Equal(t, ProviderOpenAI, events[0].From)
	assert.Equal(t, ProviderClaude, events[0].To)
	assert.Equal(t, RoleScoring, events[1].Role)
	assert.Equal(t, RoleSentiment, events[2].Role)
	for _, ev := range events {
		assert.Equal(t, EventFallbackRepointed, ev.Kind)
	}
	assert.Equal(t, events, sunk)

	stats := m.Stats()
	assert.True(t, stats.Initialized)
	assert.Equal(t, []string{ProviderClaude}, stats.AvailableProviders)
	assert.Equal(t, ProviderClaude, stats.ProviderConfig["scoring"])
}

func TestManager_NoHealthyProvider(t *testing.T) {
	m := NewManager(hybridConfig(),
		WithProvider(NewFakeProvider(ProviderOpenAI, Unhealthy())),
		WithCandidates(Candidate{Name: ProviderGemini, New: func(context.Context) (interfaces.AnalysisProvider, error) {
			return nil, errors.New("bad key")
		}}),
	)

	err := m.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoProvider)
	code, _ := ErrorCodeOf(err)
	assert.Equal(t, CodeNoProvider, code)

	_, err = m.GenerateScore(context.Background(), "VOO", models.MarketData{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_NotInitialized(t *testing.T) {
	m := NewManager(hybridConfig(), WithProvider(NewFakeProvider(ProviderOpenAI)))

	_, err := m.ProviderFor(RoleScoring)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.GenerateSentiment(context.Background(), "VOO", "")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.False(t, m.Stats().Initialized)
}

func TestManager_HybridUsesRoleProviders(t *testing.T) {
	openai := NewFakeProvider(ProviderOpenAI)
	claude := NewFakeProvider(ProviderClaude)
	xai := NewFakeProvider(ProviderXAI)
	m := NewManager(hybridConfig(), WithProvider(openai), WithProvider(claude), WithProvider(xai))
	require.NoError(t, m.Init(context.Background()))
	assert.Empty(t, m.Events())

	ctx := context.Background()
	res, err := m.GenerateScore(ctx, "voo", models.MarketData{ChangePercent: 1.5})
	require.NoError(t, err)
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, ProviderOpenAI, res.Provider)

	_, err = m.GenerateExplanation(ctx, "VOO", *res)
	require.NoError(t, err)

	s, err := m.GenerateSentiment(ctx, "VOO", "broad rally")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentBullish, s.Sentiment)

	assert.Equal(t, 1, openai.Calls("score"))
	assert.Equal(t, 1, claude.Calls("explanation"))
	assert.Equal(t, 1, xai.Calls("sentiment"))
	assert.Zero(t, openai.Calls("explanation"))
}

func TestManager_SingleModeUsesFallbackForEveryRole(t *testing.T) {
	cfg := hybridConfig()
	cfg.Mode = "SINGLE"
	cfg.Fallback = ProviderClaude
	claude := NewFakeProvider(ProviderClaude)
	xai := NewFakeProvider(ProviderXAI)
	m := NewManager(cfg, WithProvider(NewFakeProvider(ProviderOpenAI)), WithProvider(claude), WithProvider(xai))
	require.NoError(t, m.Init(context.Background()))

	for _, role := range []Role{RoleScoring, RoleExplanation, RoleSentiment} {
		p, err := m.ProviderFor(role)
		require.NoError(t, err)
		assert.Same(t, claude, p, role)
	}
	assert.Empty(t, m.Events())

	s, err := m.GenerateSentiment(context.Background(), "VOO", "broad rally")
	require.NoError(t, err)
	assert.Equal(t, models.NeutralSentiment(), *s)
	assert.Zero(t, xai.Calls("sentiment"))
	assert.Zero(t, claude.Calls("sentiment"))
}

func TestManager_SentimentNeutralWithoutSentimentProvider(t *testing.T) {
	openai := NewFakeProvider(ProviderOpenAI)
	m := NewManager(hybridConfig(), WithProvider(openai))
	require.NoError(t, m.Init(context.Background()))

	s, err := m.GenerateSentiment(context.Background(), "VOO", "selloff")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, s.Sentiment)
	assert.Equal(t, 0.5, s.Confidence)
	assert.Equal(t, models.TimeframeMedium, s.Timeframe)
	assert.Zero(t, openai.Calls("sentiment"))
}

func TestManager_InitIsIdempotent(t *testing.T) {
	var built int
	m := NewManager(hybridConfig(), WithCandidates(Candidate{Name: ProviderOpenAI, New: func(context.Context) (interfaces.AnalysisProvider, error) {
		built++
		return NewFakeProvider(ProviderOpenAI), nil
	}}))

	require.NoError(t, m.Init(context.Background()))
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, 1, built)
	assert.Len(t, m.Events(), 2)
}

func TestManager_ProviderErrorsKeepCode(t *testing.T) {
	m := NewManager(hybridConfig(), WithProvider(NewFakeProvider(ProviderOpenAI, FailWith(context.DeadlineExceeded))))
	require.NoError(t, m.Init(context.Background()))

	_, err := m.GenerateScore(context.Background(), "VOO", models.MarketData{})
	require.Error(t, err)
	code, ok := ErrorCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, CodeTimeout, code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// scriptedProvider fails or panics for chosen symbols and tracks concurrency.
type scriptedProvider struct {
	*FakeProvider
	fail     map[string]bool
	panics   map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

func (s *scriptedProvider) GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	s.mu.Lock()
	if n > s.peak.Load() {
		s.peak.Store(n)
	}
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)

	if s.panics[symbol] {
		panic("provider exploded")
	}
	if s.fail[symbol] {
		return nil, errors.New("upstream error")
	}
	return s.FakeProvider.GenerateScore(ctx, symbol, data)
}

func TestManager_BatchAnalyze(t *testing.T) {
	p := &scriptedProvider{
		FakeProvider: NewFakeProvider(ProviderOpenAI),
		fail:         map[string]bool{"S3": true},
		panics:       map[string]bool{"S7": true},
	}
	cfg := hybridConfig()
	cfg.BatchConcurrency = 4
	m := NewManager(cfg, WithProvider(p))
	require.NoError(t, m.Init(context.Background()))

	var items []BatchItem
	for i := 0; i < 10; i++ {
		items = append(items, BatchItem{Symbol: fmt.Sprintf("S%d", i), Data: models.MarketData{ChangePercent: float64(i) / 10}})
	}

	results, err := m.BatchAnalyze(context.Background(), items)
	require.NoError(t, err)

	assert.Len(t, results, 8)
	assert.NotContains(t, results, "S3")
	assert.NotContains(t, results, "S7")
	assert.Equal(t, 65, results["S5"].Score)
	assert.Equal(t, ProviderOpenAI, results["S5"].Provider)
	assert.LessOrEqual(t, int(p.peak.Load()), 4)
}

// unrulyProvider replies outside every documented range.
type unrulyProvider struct {
	*FakeProvider
}

func (u *unrulyProvider) GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error) {
	return &models.AnalysisResult{
		Score:      150,
		Signal:     "maybe",
		Confidence: "sure",
		RiskLevel:  "extreme",
	}, nil
}

func (u *unrulyProvider) GenerateSentiment(ctx context.Context, symbol, marketContext string) (*models.Sentiment, error) {
	return &models.Sentiment{Sentiment: "euphoric", Confidence: 3, Timeframe: "forever"}, nil
}

func TestManager_NormalizesProviderOutput(t *testing.T) {
	p := &unrulyProvider{FakeProvider: NewFakeProvider(ProviderOpenAI)}
	cfg := hybridConfig()
	cfg.Sentiment = ProviderOpenAI
	m := NewManager(cfg, WithProvider(p))
	require.NoError(t, m.Init(context.Background()))
	ctx := context.Background()

	res, err := m.GenerateScore(ctx, "voo", models.MarketData{})
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, models.SignalHold, res.Signal)
	assert.Equal(t, models.LevelMedium, res.Confidence)
	assert.Equal(t, models.LevelMedium, res.RiskLevel)
	assert.Equal(t, "VOO", res.Symbol)

	batch, err := m.BatchAnalyze(ctx, []BatchItem{{Symbol: "QQQ"}})
	require.NoError(t, err)
	require.Contains(t, batch, "QQQ")
	assert.Equal(t, 100, batch["QQQ"].Score)
	assert.Equal(t, models.SignalHold, batch["QQQ"].Signal)

	s, err := m.GenerateSentiment(ctx, "VOO", "")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, s.Sentiment)
	assert.Equal(t, 1.0, s.Confidence)
	assert.Equal(t, models.TimeframeMedium, s.Timeframe)
}

func TestNormalizeResult_ClampsNegativeScore(t *testing.T) {
	r := &models.AnalysisResult{Score: -20, Signal: "BUY", Confidence: "High", RiskLevel: "low"}
	normalizeResult(r)
	assert.Equal(t, 0, r.Score)
	assert.Equal(t, models.SignalBuy, r.Signal)
	assert.Equal(t, models.LevelHigh, r.Confidence)
	assert.Equal(t, models.LevelLow, r.RiskLevel)
}

func TestCandidatesFromConfig(t *testing.T) {
	cfg := &common.Config{}
	cfg.Clients.XAI.APIKey = "x"
	cfg.Clients.OpenAI.APIKey = "o"
	cfg.Clients.Claude.APIKey = "c"
	cfg.AI.EnableFake = true

	var names []string
	for _, c := range CandidatesFromConfig(cfg, common.NewSilentLogger()) {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{ProviderOpenAI, ProviderClaude, ProviderXAI, ProviderFake}, names)

	assert.Empty(t, CandidatesFromConfig(&common.Config{}, common.NewSilentLogger()))
}

func TestCandidatesFromConfig_XAIIsSentimentOnly(t *testing.T) {
	cfg := &common.Config{}
	cfg.Clients.XAI.APIKey = "x"

	candidates := CandidatesFromConfig(cfg, common.NewSilentLogger())
	require.Len(t, candidates, 1)

	p, err := candidates[0].New(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProviderXAI, p.Name())

	_, err = p.GenerateScore(context.Background(), "VOO", models.MarketData{})
	assert.ErrorIs(t, err, ErrNotSupported)
}
