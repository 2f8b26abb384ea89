// Package analysis routes scoring, explanation and sentiment requests to
// health-checked AI providers, repointing roles whose provider is missing.
package analysis

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// Role is a routable analysis task.
type Role string

const (
	RoleScoring     Role = "scoring"
	RoleExplanation Role = "explanation"
	RoleSentiment   Role = "sentiment"
	RoleFallback    Role = "fallback"
)

// Routing modes.
const (
	ModeHybrid = "hybrid"
	ModeSingle = "single"
)

// Provider identifiers.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderXAI    = "xai"
	ProviderFake   = "fake"
)

// EventFallbackRepointed is emitted when a role is moved to another provider.
const EventFallbackRepointed = "fallback_repointed"

const defaultBatchConcurrency = 5

// repointOrder is the preference order when the fallback must be replaced.
var repointOrder = []string{ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderXAI, ProviderFake}

// RoutingEvent records a change to role routing made during Init.
type RoutingEvent struct {
	Kind string    `json:"kind"`
	Role Role      `json:"role"`
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Candidate is a provider that may be registered if it passes its health check.
type Candidate struct {
	Name string
	New  func(ctx context.Context) (interfaces.AnalysisProvider, error)
}

// BatchItem is one symbol to score in BatchAnalyze.
type BatchItem struct {
	Symbol string            `json:"symbol"`
	Data   models.MarketData `json:"data"`
}

// Stats describes the manager for monitoring.
type Stats struct {
	Initialized        bool              `json:"initialized"`
	Mode               string            `json:"mode"`
	AvailableProviders []string          `json:"availableProviders"`
	ProviderConfig     map[string]string `json:"providerConfig"`
}

// Manager owns the provider registry and role routing.
type Manager struct {
	mu          sync.RWMutex
	mode        string
	configured  map[Role]string // roles as configured
	roles       map[Role]string // roles after repointing
	candidates  []Candidate
	providers   map[string]interfaces.AnalysisProvider
	registered  []string
	events      []RoutingEvent
	sink        func(RoutingEvent)
	concurrency int
	initialized bool
	logger      *common.Logger
	now         func() time.Time
}

// ManagerOption configures the manager
type ManagerOption func(*Manager)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEventSink receives every routing event as it is emitted
func WithEventSink(sink func(RoutingEvent)) ManagerOption {
	return func(m *Manager) {
		m.sink = sink
	}
}

// WithCandidates appends provider candidates
func WithCandidates(candidates ...Candidate) ManagerOption {
	return func(m *Manager) {
		m.candidates = append(m.candidates, candidates...)
	}
}

// WithProvider adds an already constructed provider as a candidate
func WithProvider(p interfaces.AnalysisProvider) ManagerOption {
	return WithCandidates(Candidate{
		Name: p.Name(),
		New: func(context.Context) (interfaces.AnalysisProvider, error) {
			return p, nil
		},
	})
}

// NewManager creates a manager from the [ai] section. Providers are added
// with WithCandidates or WithProvider and registered by Init.
func NewManager(cfg common.AIConfig, opts ...ManagerOption) *Manager {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode != ModeSingle {
		mode = ModeHybrid
	}
	configured := map[Role]string{
		RoleScoring:     orDefault(cfg.Scoring, ProviderOpenAI),
		RoleExplanation: orDefault(cfg.Explanation, ProviderClaude),
		RoleSentiment:   orDefault(cfg.Sentiment, ProviderXAI),
		RoleFallback:    orDefault(cfg.Fallback, ProviderOpenAI),
	}
	concurrency := cfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}

	m := &Manager{
		mode:        mode,
		configured:  configured,
		roles:       copyRoles(configured),
		providers:   make(map[string]interfaces.AnalysisProvider),
		concurrency: concurrency,
		logger:      common.NewSilentLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func orDefault(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}

func copyRoles(in map[Role]string) map[Role]string {
	out := make(map[Role]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Init health-checks every candidate and registers those that pass. It fails
// only when nothing registers. Calling Init again is a no-op.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	for _, c := range m.candidates {
		if _, dup := m.providers[c.Name]; dup {
			continue
		}
		p, err := c.New(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Str("provider", c.Name).Msg("AI provider construction failed")
			continue
		}
		if !p.HealthCheck(ctx) {
			m.logger.Warn().Str("provider", c.Name).Msg("AI provider failed health check")
			continue
		}
		m.providers[c.Name] = p
		m.registered = append(m.registered, c.Name)
		m.logger.Info().Str("provider", c.Name).Msg("AI provider registered")
	}

	if len(m.providers) == 0 {
		return &AIError{Provider: "manager", Code: CodeNoProvider, Message: "check provider API keys", Err: ErrNoProvider}
	}

	if fb := m.roles[RoleFallback]; m.providers[fb] == nil {
		m.repoint(RoleFallback, m.firstRegistered())
	}
	if m.mode == ModeHybrid {
		for _, role := range []Role{RoleScoring, RoleExplanation, RoleSentiment} {
			if m.providers[m.roles[role]] == nil {
				m.repoint(role, m.roles[RoleFallback])
			}
		}
	}

	m.initialized = true
	m.logger.Info().
		Str("mode", m.mode).
		Int("providers", len(m.providers)).
		Str("fallback", m.roles[RoleFallback]).
		Msg("AI manager initialized")
	return nil
}

func (m *Manager) firstRegistered() string {
	for _, name := range repointOrder {
		if m.providers[name] != nil {
			return name
		}
	}
	return m.registered[0]
}

// repoint must be called with m.mu held.
func (m *Manager) repoint(role Role, to string) {
	ev := RoutingEvent{Kind: EventFallbackRepointed, Role: role, From: m.roles[role], To: to, At: m.now()}
	m.roles[role] = to
	m.events = append(m.events, ev)
	m.logger.Warn().
		Str("role", string(role)).
		Str("from", ev.From).
		Str("to", ev.To).
		Msg("AI provider unavailable, role repointed")
	if m.sink != nil {
		m.sink(ev)
	}
}

// Events returns the routing events emitted so far.
func (m *Manager) Events() []RoutingEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RoutingEvent(nil), m.events...)
}

// ProviderFor resolves the provider serving role.
func (m *Manager) ProviderFor(role Role) (interfaces.AnalysisProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}

	if m.mode == ModeHybrid {
		if p := m.providers[m.roles[role]]; p != nil {
			return p, nil
		}
	}
	if p := m.providers[m.roles[RoleFallback]]; p != nil {
		return p, nil
	}
	return nil, &AIError{
		Provider: "manager",
		Code:     CodeNoProvider,
		Message:  fmt.Sprintf("provider %s not found and no fallback available", m.roles[role]),
		Err:      ErrNoProvider,
	}
}

// GenerateScore scores one symbol with the scoring provider.
func (m *Manager) GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error) {
	p, err := m.ProviderFor(RoleScoring)
	if err != nil {
		return nil, err
	}
	result, err := p.GenerateScore(ctx, symbol, data)
	if err != nil {
		return nil, wrapError(p.Name(), CodeScoreFailed, "failed to generate score", err)
	}
	if result.Symbol == "" {
		result.Symbol = symbol
	}
	normalizeResult(result)
	if result.Provider == "" {
		result.Provider = p.Name()
	}
	return result, nil
}

// GenerateExplanation explains a prior score with the explanation provider.
func (m *Manager) GenerateExplanation(ctx context.Context, symbol string, analysis models.AnalysisResult) (string, error) {
	p, err := m.ProviderFor(RoleExplanation)
	if err != nil {
		return "", err
	}
	text, err := p.GenerateExplanation(ctx, symbol, analysis)
	if err != nil {
		return "", wrapError(p.Name(), CodeExplanationFailed, "failed to generate explanation", err)
	}
	return text, nil
}

// GenerateSentiment calls the configured sentiment provider. In single mode,
// or when that provider is not registered, it returns a neutral reading
// without calling anything.
func (m *Manager) GenerateSentiment(ctx context.Context, symbol, marketContext string) (*models.Sentiment, error) {
	m.mu.RLock()
	if !m.initialized {
		m.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	p := m.providers[m.configured[RoleSentiment]]
	single := m.mode == ModeSingle
	m.mu.RUnlock()

	if single || p == nil {
		neutral := models.NeutralSentiment()
		return &neutral, nil
	}

	sentiment, err := p.GenerateSentiment(ctx, symbol, marketContext)
	if err != nil {
		return nil, wrapError(p.Name(), CodeSentimentFailed, "failed to generate sentiment", err)
	}
	normalizeSentiment(sentiment)
	return sentiment, nil
}

// BatchAnalyze scores items in groups of batch_concurrency. Failed symbols
// are logged and left out of the result.
func (m *Manager) BatchAnalyze(ctx context.Context, items []BatchItem) (map[string]models.AnalysisResult, error) {
	p, err := m.ProviderFor(RoleScoring)
	if err != nil {
		return nil, err
	}

	results := make(map[string]models.AnalysisResult, len(items))
	var mu sync.Mutex

	for start := 0; start < len(items); start += m.concurrency {
		end := start + m.concurrency
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			m.safeGo(&wg, item.Symbol, func() {
				result, err := p.GenerateScore(ctx, item.Symbol, item.Data)
				if err != nil {
					m.logger.Warn().Err(err).Str("symbol", item.Symbol).Str("provider", p.Name()).Msg("Batch analysis failed for symbol")
					return
				}
				if result.Symbol == "" {
					result.Symbol = item.Symbol
				}
				normalizeResult(result)
				if result.Provider == "" {
					result.Provider = p.Name()
				}
				mu.Lock()
				results[strings.ToUpper(item.Symbol)] = *result
				mu.Unlock()
			})
		}
		wg.Wait()
	}
	return results, nil
}

// safeGo runs fn on a goroutine tracked by wg, recovering panics.
func (m *Manager) safeGo(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("symbol", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in batch analysis")
			}
		}()
		fn()
	}()
}

// Stats reports registration and routing.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := make(map[string]string, len(m.roles))
	for role, name := range m.roles {
		cfg[string(role)] = name
	}
	return Stats{
		Initialized:        m.initialized,
		Mode:               m.mode,
		AvailableProviders: append([]string{}, m.registered...),
		ProviderConfig:     cfg,
	}
}
