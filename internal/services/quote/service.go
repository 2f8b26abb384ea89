// Package quote is the cache read path. Reads are served from the cache
// and annotated with how fresh the entry is; an expired quote is refetched
// when an upstream client is available.
package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// CacheRefreshed marks a quote that was refetched during the read.
const CacheRefreshed models.CacheStatus = "refreshed"

var (
	// ErrNotFound means neither the cache nor the upstream had data.
	ErrNotFound = errors.New("no data available")
	// ErrNoClient is returned by reads that need the upstream when none is configured.
	ErrNoClient = errors.New("market data client not configured")
)

// QuoteView is a cached quote annotated with its cache status.
type QuoteView struct {
	Symbol    string             `json:"symbol"`
	Name      string             `json:"name"`
	Quote     models.QuoteRecord `json:"quote"`
	Cache     models.CacheStatus `json:"cache"`
	Stale     bool               `json:"stale"`
	FetchedAt time.Time          `json:"fetchedAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// HistoryView is a cached bar series annotated with its cache status.
type HistoryView struct {
	Symbol    string                  `json:"symbol"`
	Series    models.HistoricalSeries `json:"series"`
	Cache     models.CacheStatus      `json:"cache"`
	Stale     bool                    `json:"stale"`
	FetchedAt time.Time               `json:"fetchedAt"`
	ExpiresAt time.Time               `json:"expiresAt"`
}

// TopPicksView is the ranked snapshot annotated with its cache status.
type TopPicksView struct {
	Picks     []models.TopPick   `json:"picks"`
	Cache     models.CacheStatus `json:"cache"`
	Stale     bool               `json:"stale"`
	FetchedAt time.Time          `json:"fetchedAt"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// Service serves cached market data.
type Service struct {
	client       interfaces.MarketDataClient
	storage      interfaces.StorageManager
	logger       *common.Logger
	now          func() time.Time
	quoteTTL     time.Duration
	portfolioTTL time.Duration
}

// Option configures the service
type Option func(*Service)

// WithClient enables refetching expired quotes and ticker details
func WithClient(client interfaces.MarketDataClient) Option {
	return func(s *Service) {
		s.client = client
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

// WithQuoteTTL sets the lifetime of quotes written by a refetch
func WithQuoteTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.quoteTTL = ttl
		}
	}
}

// WithPortfolioTTL sets the lifetime of cached portfolio summaries
func WithPortfolioTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.portfolioTTL = ttl
		}
	}
}

// NewService creates a read-path service over storage.
func NewService(storage interfaces.StorageManager, opts ...Option) *Service {
	s := &Service{
		storage:      storage,
		logger:       common.NewSilentLogger(),
		now:          time.Now,
		quoteTTL:     common.TTLIntraday,
		portfolioTTL: common.TTLIntraday,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetQuote serves the cached quote. An expired or missing quote is
// refetched when a client is configured; if that yields nothing an expired
// entry is still served, flagged stale.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*QuoteView, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	now := s.now()

	entry, err := s.storage.QuoteCache().Get(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("read quote cache for %s: %w", symbol, err)
	}
	if entry != nil && !entry.IsExpired(now) {
		return quoteView(symbol, entry, entry.Status(now)), nil
	}

	if s.client != nil {
		rec, err := s.refetch(ctx, symbol)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote refetch failed")
		}
		if rec != nil {
			if err := s.storage.QuoteCache().Set(ctx, symbol, *rec, s.quoteTTL); err != nil {
				s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache refetched quote")
			}
			refreshed := models.NewCacheEntry(symbol, *rec, now, s.quoteTTL)
			return quoteView(symbol, refreshed, CacheRefreshed), nil
		}
	}

	if entry != nil {
		view := quoteView(symbol, entry, models.CacheExpired)
		view.Stale = true
		return view, nil
	}
	return nil, fmt.Errorf("quote for %s: %w", symbol, ErrNotFound)
}

func (s *Service) refetch(ctx context.Context, symbol string) (*models.QuoteRecord, error) {
	nbbo, err := s.client.GetLatestQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if nbbo == nil {
		return nil, nil
	}
	prev, err := s.client.GetPreviousClose(ctx, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Previous close unavailable, serving quote without change")
		prev = nil
	}
	rec := models.NewQuoteRecord(symbol, *nbbo, prev)
	return &rec, nil
}

func quoteView(symbol string, entry *models.CacheEntry[models.QuoteRecord], status models.CacheStatus) *QuoteView {
	return &QuoteView{
		Symbol:    symbol,
		Name:      models.ETFName(symbol),
		Quote:     entry.Payload,
		Cache:     status,
		Stale:     status == models.CacheStale,
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
	}
}

// GetHistory serves the cached series for symbol and granularity.
func (s *Service) GetHistory(ctx context.Context, symbol string, granularity models.Granularity) (*HistoryView, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	entry, err := s.storage.HistoricalCache().Get(ctx, symbol, granularity)
	if err != nil {
		return nil, fmt.Errorf("read historical cache for %s: %w", symbol, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%s history for %s: %w", granularity, symbol, ErrNotFound)
	}
	status := entry.Status(s.now())
	return &HistoryView{
		Symbol:    symbol,
		Series:    entry.Payload,
		Cache:     status,
		Stale:     status != models.CacheFresh,
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

// GetTopPicks serves the ranked snapshot.
func (s *Service) GetTopPicks(ctx context.Context) (*TopPicksView, error) {
	entry, err := s.storage.TopPicksCache().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read top picks cache: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("top picks: %w", ErrNotFound)
	}
	status := entry.Status(s.now())
	picks := entry.Payload
	if picks == nil {
		picks = []models.TopPick{}
	}
	return &TopPicksView{
		Picks:     picks,
		Cache:     status,
		Stale:     status != models.CacheFresh,
		FetchedAt: entry.FetchedAt,
		ExpiresAt: entry.ExpiresAt,
	}, nil
}

// GetDetails returns upstream reference metadata. It is not cached.
func (s *Service) GetDetails(ctx context.Context, symbol string) (*models.TickerDetails, error) {
	if s.client == nil {
		return nil, ErrNoClient
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	details, err := s.client.GetTickerDetails(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("ticker details for %s: %w", symbol, err)
	}
	if details == nil {
		return nil, fmt.Errorf("ticker details for %s: %w", symbol, ErrNotFound)
	}
	if details.Name == "" {
		details.Name = models.ETFName(symbol)
	}
	return details, nil
}
