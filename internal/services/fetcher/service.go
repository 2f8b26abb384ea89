// Package fetcher runs tiered fetches from the market data client into the
// cache: gate check, lease, mode detection, a paced batch walk, the top picks
// pass and one run log per invocation.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// Collection names accepted in tier configuration.
const (
	CollectionQuotes     = "quotes"
	CollectionHistorical = "historical"
	CollectionTopPicks   = "top_picks"
)

// Run modes reported in the summary.
const (
	ModeFirst       = "first"
	ModeIncremental = "incremental"
	ModeMixed       = "mixed"
)

const (
	cadenceIntraday = "intraday"
	leaseHeldMsg    = "tier run already in progress"
)

// ErrUnknownTier is returned when Run names a tier that is not configured.
var ErrUnknownTier = errors.New("unknown tier")

// Gate reports whether intraday tiers may run.
type Gate interface {
	IsOpen() bool
	StatusMessage() string
}

// Scorer produces an AI score for the top picks pass.
type Scorer interface {
	GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RunOptions modify a single run.
type RunOptions struct {
	Force       bool     // bypass the market hours gate
	Collections []string // restrict the tier's collections; empty keeps them all
}

// CollectionResult tallies one collection across the walk.
type CollectionResult struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// TopPicksResult reports the ranked snapshot pass.
type TopPicksResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Summary is returned by every Run.
type Summary struct {
	RunID       string                       `json:"runId"`
	Tier        string                       `json:"tier"`
	Status      models.RunStatus             `json:"status"`
	Message     string                       `json:"message,omitempty"`
	Mode        string                       `json:"mode,omitempty"`
	Collections map[string]*CollectionResult `json:"collections"`
	TopPicks    *TopPicksResult              `json:"topPicks,omitempty"`
	Errors      []string                     `json:"errors"`
	Symbols     int                          `json:"symbols"`
	FetchCount  int                          `json:"fetchCount"`
	DurationMS  int64                        `json:"durationMs"`
	Timestamp   time.Time                    `json:"timestamp"`
	Error       string                       `json:"error,omitempty"`
}

// Service runs fetch tiers.
type Service struct {
	client  interfaces.MarketDataClient
	storage interfaces.StorageManager
	gate    Gate
	config  common.FetchConfig
	scorer  Scorer
	logger  *common.Logger
	now     func() time.Time
	sleep   Sleeper
}

// Option configures the service
type Option func(*Service)

// WithScorer sets the AI scorer used by the top picks pass. Without one the
// heuristic scorer is used.
func WithScorer(scorer Scorer) Option {
	return func(s *Service) {
		s.scorer = scorer
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithSleep replaces the context-aware delay between calls
func WithSleep(sleep Sleeper) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// NewService creates a fetch orchestrator.
func NewService(client interfaces.MarketDataClient, storage interfaces.StorageManager, gate Gate, config common.FetchConfig, opts ...Option) *Service {
	s := &Service{
		client:  client,
		storage: storage,
		gate:    gate,
		config:  config,
		logger:  common.NewSilentLogger(),
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Tiers returns the configured tier names.
func (s *Service) Tiers() []string {
	names := make([]string, len(s.config.Tiers))
	for i, t := range s.config.Tiers {
		names[i] = t.Name
	}
	return names
}

func (s *Service) tier(name string) (common.TierConfig, bool) {
	for _, t := range s.config.Tiers {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return common.TierConfig{}, false
}

// Run executes one invocation of the named tier. Skipped, successful and
// partial runs return a nil error. A run-level failure returns a failed
// summary together with the error; the failure is recorded in the run log
// before returning.
func (s *Service) Run(ctx context.Context, tierName string, opts RunOptions) (*Summary, error) {
	tier, ok := s.tier(tierName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, tierName)
	}

	started := s.now()
	summary := &Summary{
		RunID:       uuid.New().String(),
		Tier:        tier.Name,
		Collections: make(map[string]*CollectionResult),
		Errors:      []string{},
		Timestamp:   started,
	}

	if strings.EqualFold(tier.Cadence, cadenceIntraday) && !opts.Force && s.gate != nil && !s.gate.IsOpen() {
		summary.Status = models.RunSkipped
		summary.Message = s.gate.StatusMessage()
		s.logger.Info().Str("tier", tier.Name).Str("reason", summary.Message).Msg("Fetch run skipped: market closed")
		return summary, nil
	}

	symbols, err := tierSymbols(tier)
	if err != nil {
		return s.fail(ctx, summary, nil, started, err)
	}
	summary.Symbols = len(symbols)

	acquired, err := s.storage.LeaseStore().Acquire(ctx, tier.Name, summary.RunID, s.config.GetLeaseTTL())
	if err != nil {
		return s.fail(ctx, summary, symbols, started, fmt.Errorf("acquire tier lease: %w", err))
	}
	if !acquired {
		summary.Status = models.RunSkipped
		summary.Message = leaseHeldMsg
		s.logger.Warn().Str("tier", tier.Name).Msg("Fetch run skipped: tier lease held by another run")
		return summary, nil
	}
	defer func() {
		if err := s.storage.LeaseStore().Release(context.WithoutCancel(ctx), tier.Name, summary.RunID); err != nil {
			s.logger.Warn().Err(err).Str("tier", tier.Name).Msg("Failed to release tier lease")
		}
	}()

	s.logger.Info().
		Str("tier", tier.Name).
		Str("run_id", summary.RunID).
		Int("symbols", len(symbols)).
		Bool("force", opts.Force).
		Msg("Fetch run started")

	collections := selectCollections(tier.Collections, opts.Collections)
	if err := s.execute(ctx, tier, symbols, collections, summary); err != nil {
		return s.fail(ctx, summary, symbols, started, err)
	}

	failures := len(summary.Errors)
	summary.Status = models.RunSuccess
	if failures > 0 {
		summary.Status = models.RunPartial
	}
	summary.DurationMS = s.now().Sub(started).Milliseconds()

	runLog := &models.FetchRunLog{
		ID:          summary.RunID,
		Tier:        tier.Name,
		Symbols:     symbols,
		Status:      summary.Status,
		FetchCount:  summary.FetchCount,
		FailedCount: len(symbols) - summary.FetchCount,
		DurationMS:  summary.DurationMS,
		StartedAt:   started,
	}
	if failures > 0 {
		runLog.ErrorMessage = strings.Join(summary.Errors, "; ")
	}
	if err := s.storage.RunLogStore().Append(ctx, runLog); err != nil {
		return summary, fmt.Errorf("write run log: %w", err)
	}

	s.logger.Info().
		Str("tier", tier.Name).
		Str("run_id", summary.RunID).
		Str("status", string(summary.Status)).
		Str("mode", summary.Mode).
		Int("fetched", summary.FetchCount).
		Int("errors", failures).
		Int64("duration_ms", summary.DurationMS).
		Msg("Fetch run complete")

	return summary, nil
}

// execute runs the walk and the top picks pass, converting a panic into an error.
func (s *Service) execute(ctx context.Context, tier common.TierConfig, symbols, collections []string, summary *Summary) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("tier", tier.Name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in fetch run")
			err = fmt.Errorf("fetch run panicked: %v", r)
		}
	}()

	for _, c := range collections {
		summary.Collections[c] = &CollectionResult{Errors: []string{}}
	}

	firstFetch := map[string]bool{}
	if contains(collections, CollectionHistorical) {
		firstFetch, summary.Mode, err = s.detectModes(ctx, symbols)
		if err != nil {
			return err
		}
	}

	if err := s.walk(ctx, tier, symbols, collections, firstFetch, summary); err != nil {
		return err
	}

	if contains(collections, CollectionTopPicks) {
		summary.TopPicks = s.refreshTopPicks(ctx, tier, symbols)
		if !summary.TopPicks.Success {
			summary.Errors = append(summary.Errors, "top_picks: "+summary.TopPicks.Error)
		}
	}
	return nil
}

// fail records a run-level failure.
func (s *Service) fail(ctx context.Context, summary *Summary, symbols []string, started time.Time, cause error) (*Summary, error) {
	summary.Status = models.RunFailed
	summary.Error = cause.Error()
	summary.DurationMS = s.now().Sub(started).Milliseconds()

	s.logger.Error().
		Err(cause).
		Str("tier", summary.Tier).
		Str("run_id", summary.RunID).
		Int64("duration_ms", summary.DurationMS).
		Msg("Fetch run failed")

	runLog := &models.FetchRunLog{
		ID:           summary.RunID,
		Tier:         summary.Tier,
		Symbols:      symbols,
		Status:       models.RunFailed,
		FetchCount:   summary.FetchCount,
		FailedCount:  len(symbols) - summary.FetchCount,
		DurationMS:   summary.DurationMS,
		ErrorMessage: cause.Error(),
		StartedAt:    started,
	}
	if err := s.storage.RunLogStore().Append(context.WithoutCancel(ctx), runLog); err != nil {
		return summary, fmt.Errorf("%w (run log not written: %v)", cause, err)
	}
	return summary, cause
}

// tierSymbols resolves the tier's symbol list, uppercased and de-duplicated
// in first-seen order.
func tierSymbols(tier common.TierConfig) ([]string, error) {
	symbols := tier.Symbols
	if len(symbols) == 0 {
		set, err := models.SymbolSet(tier.SymbolSet)
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier.Name, err)
		}
		symbols = set
	}

	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tier %s has no symbols", tier.Name)
	}
	return out, nil
}

// selectCollections keeps the tier's collections, narrowed to the requested
// ones when any are given. Order is fixed: quotes, historical, top_picks.
func selectCollections(tierCollections, requested []string) []string {
	var out []string
	for _, c := range []string{CollectionQuotes, CollectionHistorical, CollectionTopPicks} {
		if !contains(tierCollections, c) {
			continue
		}
		if len(requested) > 0 && !contains(requested, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
