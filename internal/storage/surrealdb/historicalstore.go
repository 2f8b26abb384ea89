package surrealdb

import (
	"context"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// HistoricalStore caches one bar series per symbol and granularity.
type HistoricalStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	now    func() time.Time
}

func NewHistoricalStore(db *surrealdb.DB, logger *common.Logger, now func() time.Time) *HistoricalStore {
	return &HistoricalStore{db: db, logger: logger, now: now}
}

func (s *HistoricalStore) Get(ctx context.Context, symbol string, granularity models.Granularity) (*models.CacheEntry[models.HistoricalSeries], error) {
	return selectEntry[models.HistoricalSeries](ctx, s.db, tableHistorical, models.HistoricalKey(symbol, granularity))
}

// Set writes a series. A first fetch replaces whatever is cached. An
// incremental fetch appends bars newer than the cached series, keeping its
// window start, and falls back to a full write when nothing is cached.
func (s *HistoricalStore) Set(ctx context.Context, symbol string, granularity models.Granularity, bars []models.Bar, windowStart, windowEnd time.Time, isFirstFetch bool, ttl time.Duration) error {
	now := s.now()
	key := models.HistoricalKey(symbol, granularity)

	if !isFirstFetch {
		existing, err := s.Get(ctx, symbol, granularity)
		if err != nil {
			return err
		}
		if existing != nil {
			series := existing.Payload.Append(bars, windowEnd)
			entry := models.NewCacheEntry(key, series, now, ttl)
			if err := upsertEntry(ctx, s.db, tableHistorical, entry); err != nil {
				return err
			}
			s.logger.Debug().
				Str("key", key).
				Int("prior", len(existing.Payload.Bars)).
				Int("total", len(series.Bars)).
				Msg("Historical series appended")
			return nil
		}
		s.logger.Debug().Str("key", key).Msg("No cached series for incremental fetch, writing full window")
	}

	series := models.NewHistoricalSeries(symbol, granularity, bars, windowStart, windowEnd)
	entry := models.NewCacheEntry(key, series, now, ttl)
	if err := replaceEntry(ctx, s.db, tableHistorical, entry, false); err != nil {
		return err
	}
	s.logger.Debug().Str("key", key).Int("bars", len(series.Bars)).Msg("Historical series replaced")
	return nil
}

func (s *HistoricalStore) Exists(ctx context.Context, symbol string, granularity models.Granularity) (bool, error) {
	entry, err := s.Get(ctx, symbol, granularity)
	if err != nil || entry == nil {
		return false, err
	}
	return !entry.IsExpired(s.now()), nil
}

func (s *HistoricalStore) DeleteExpired(ctx context.Context) (int, error) {
	return deleteExpired(ctx, s.db, tableHistorical, s.now())
}
