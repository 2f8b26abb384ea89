package surrealdb

import (
	"context"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QuoteStore caches the latest quote per symbol.
type QuoteStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	now    func() time.Time
}

func NewQuoteStore(db *surrealdb.DB, logger *common.Logger, now func() time.Time) *QuoteStore {
	return &QuoteStore{db: db, logger: logger, now: now}
}

// Get returns the cached entry or nil when absent. Expired entries are
// returned so callers can serve them as stale.
func (s *QuoteStore) Get(ctx context.Context, symbol string) (*models.CacheEntry[models.QuoteRecord], error) {
	return selectEntry[models.QuoteRecord](ctx, s.db, tableQuote, strings.ToUpper(symbol))
}

func (s *QuoteStore) Set(ctx context.Context, symbol string, quote models.QuoteRecord, ttl time.Duration) error {
	entry := models.NewCacheEntry(strings.ToUpper(symbol), quote, s.now(), ttl)
	if err := upsertEntry(ctx, s.db, tableQuote, entry); err != nil {
		return err
	}
	s.logger.Debug().Str("symbol", entry.Key).Dur("ttl", ttl).Msg("Quote cached")
	return nil
}

// Exists is true only for a non-expired entry.
func (s *QuoteStore) Exists(ctx context.Context, symbol string) (bool, error) {
	entry, err := s.Get(ctx, symbol)
	if err != nil || entry == nil {
		return false, err
	}
	return !entry.IsExpired(s.now()), nil
}

func (s *QuoteStore) DeleteExpired(ctx context.Context) (int, error) {
	return deleteExpired(ctx, s.db, tableQuote, s.now())
}
