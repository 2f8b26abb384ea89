package interfaces

import (
	"context"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// StorageManager coordinates the cache stores
type StorageManager interface {
	QuoteCache() QuoteCache
	HistoricalCache() HistoricalCache
	TopPicksCache() TopPicksCache
	PortfolioCache() PortfolioCache
	RunLogStore() RunLogStore
	LeaseStore() LeaseStore

	// CacheStats counts entries per kind
	CacheStats(ctx context.Context) (*models.CacheStats, error)

	// CleanupExpired deletes expired entries in every kind
	CleanupExpired(ctx context.Context) (*models.CleanupResult, error)

	Close() error
}

// QuoteCache stores the latest quote per symbol.
type QuoteCache interface {
	Get(ctx context.Context, symbol string) (*models.CacheEntry[models.QuoteRecord], error)
	Set(ctx context.Context, symbol string, quote models.QuoteRecord, ttl time.Duration) error
	Exists(ctx context.Context, symbol string) (bool, error)
	DeleteExpired(ctx context.Context) (int, error)
}

// HistoricalCache stores one bar series per symbol and granularity.
type HistoricalCache interface {
	Get(ctx context.Context, symbol string, granularity models.Granularity) (*models.CacheEntry[models.HistoricalSeries], error)
	// Set replaces the series when isFirstFetch is true, otherwise appends
	// bars newer than the cached series and moves its window end forward.
	Set(ctx context.Context, symbol string, granularity models.Granularity, bars []models.Bar, windowStart, windowEnd time.Time, isFirstFetch bool, ttl time.Duration) error
	Exists(ctx context.Context, symbol string, granularity models.Granularity) (bool, error)
	DeleteExpired(ctx context.Context) (int, error)
}

// TopPicksCache stores the single ranked snapshot.
type TopPicksCache interface {
	Get(ctx context.Context) (*models.CacheEntry[[]models.TopPick], error)
	Set(ctx context.Context, picks []models.TopPick, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int, error)
}

// PortfolioCache stores aggregate views keyed by symbol set.
type PortfolioCache interface {
	Get(ctx context.Context, symbols []string) (*models.CacheEntry[models.PortfolioSnapshot], error)
	Set(ctx context.Context, symbols []string, data map[string]any, ttl time.Duration) error
	DeleteExpired(ctx context.Context) (int, error)
}

// RunLogStore is the append-only run audit log.
type RunLogStore interface {
	Append(ctx context.Context, run *models.FetchRunLog) error
	ListRecent(ctx context.Context, limit int) ([]*models.FetchRunLog, error)
}

// LeaseStore grants time-bounded per-tier claims.
type LeaseStore interface {
	// Acquire returns true when no live lease exists or holder already owns it
	Acquire(ctx context.Context, tier, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tier, holder string) error
}
