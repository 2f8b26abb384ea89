package surrealdb

import (
	"context"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// PortfolioStore caches aggregate views keyed by the sorted symbol set.
type PortfolioStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	now    func() time.Time
}

func NewPortfolioStore(db *surrealdb.DB, logger *common.Logger, now func() time.Time) *PortfolioStore {
	return &PortfolioStore{db: db, logger: logger, now: now}
}

func (s *PortfolioStore) Get(ctx context.Context, symbols []string) (*models.CacheEntry[models.PortfolioSnapshot], error) {
	return selectEntry[models.PortfolioSnapshot](ctx, s.db, tablePortfolio, models.PortfolioKey(symbols))
}

func (s *PortfolioStore) Set(ctx context.Context, symbols []string, data map[string]any, ttl time.Duration) error {
	key := models.PortfolioKey(symbols)
	snapshot := models.PortfolioSnapshot{Symbols: models.NormalizeSymbols(symbols), Data: data}
	return upsertEntry(ctx, s.db, tablePortfolio, models.NewCacheEntry(key, snapshot, s.now(), ttl))
}

func (s *PortfolioStore) DeleteExpired(ctx context.Context) (int, error) {
	return deleteExpired(ctx, s.db, tablePortfolio, s.now())
}
