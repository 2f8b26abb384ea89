package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const (
	tableQuote      = "quote_cache"
	tableHistorical = "historical_cache"
	tableTopPicks   = "top_picks_cache"
	tablePortfolio  = "portfolio_cache"
	tableRunLog     = "fetch_run_log"
	tableLease      = "fetch_lease"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	quoteStore      *QuoteStore
	historicalStore *HistoricalStore
	topPicksStore   *TopPicksStore
	portfolioStore  *PortfolioStore
	runLogStore     *RunLogStore
	leaseStore      *LeaseStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(ctx context.Context, logger *common.Logger, config *common.Config) (*Manager, error) {
	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManager(ctx, db, logger, time.Now)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func newManager(ctx context.Context, db *surrealdb.DB, logger *common.Logger, now func() time.Time) (*Manager, error) {
	// SurrealDB v3 errors on querying non-existent tables
	for _, table := range []string{tableQuote, tableHistorical, tableTopPicks, tablePortfolio, tableRunLog, tableLease} {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	return &Manager{
		db:              db,
		logger:          logger,
		quoteStore:      NewQuoteStore(db, logger, now),
		historicalStore: NewHistoricalStore(db, logger, now),
		topPicksStore:   NewTopPicksStore(db, logger, now),
		portfolioStore:  NewPortfolioStore(db, logger, now),
		runLogStore:     NewRunLogStore(db, logger),
		leaseStore:      NewLeaseStore(db, logger, now),
	}, nil
}

func (m *Manager) QuoteCache() interfaces.QuoteCache {
	return m.quoteStore
}

func (m *Manager) HistoricalCache() interfaces.HistoricalCache {
	return m.historicalStore
}

func (m *Manager) TopPicksCache() interfaces.TopPicksCache {
	return m.topPicksStore
}

func (m *Manager) PortfolioCache() interfaces.PortfolioCache {
	return m.portfolioStore
}

func (m *Manager) RunLogStore() interfaces.RunLogStore {
	return m.runLogStore
}

func (m *Manager) LeaseStore() interfaces.LeaseStore {
	return m.leaseStore
}

// CacheStats counts total and expired entries per cache kind.
func (m *Manager) CacheStats(ctx context.Context) (*models.CacheStats, error) {
	now := m.quoteStore.now()
	stats := &models.CacheStats{}

	for _, k := range []struct {
		table string
		dst   *models.KindStats
	}{
		{tableQuote, &stats.Quote},
		{tableHistorical, &stats.Historical},
		{tableTopPicks, &stats.TopPicks},
		{tablePortfolio, &stats.Portfolio},
	} {
		ks, err := kindStats(ctx, m.db, k.table, now)
		if err != nil {
			return nil, err
		}
		*k.dst = ks
	}

	return stats, nil
}

// CleanupExpired deletes expired entries in every cache kind. A failing kind
// is logged and skipped so the others still get cleaned.
func (m *Manager) CleanupExpired(ctx context.Context) (*models.CleanupResult, error) {
	result := &models.CleanupResult{}
	var firstErr error

	for _, k := range []struct {
		name string
		fn   func(context.Context) (int, error)
		dst  *int
	}{
		{"quote", m.quoteStore.DeleteExpired, &result.Quote},
		{"historical", m.historicalStore.DeleteExpired, &result.Historical},
		{"topPicks", m.topPicksStore.DeleteExpired, &result.TopPicks},
		{"portfolio", m.portfolioStore.DeleteExpired, &result.Portfolio},
	} {
		n, err := k.fn(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Str("kind", k.name).Msg("Failed to clean expired cache entries")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		*k.dst = n
	}

	m.logger.Info().
		Int("quote", result.Quote).
		Int("historical", result.Historical).
		Int("top_picks", result.TopPicks).
		Int("portfolio", result.Portfolio).
		Msg("Expired cache entries cleaned")

	return result, firstErr
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
