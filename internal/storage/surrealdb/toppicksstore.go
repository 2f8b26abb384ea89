package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// TopPicksStore holds the single live ranked snapshot.
type TopPicksStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	now    func() time.Time
}

func NewTopPicksStore(db *surrealdb.DB, logger *common.Logger, now func() time.Time) *TopPicksStore {
	return &TopPicksStore{db: db, logger: logger, now: now}
}

// Get returns the newest snapshot or nil.
func (s *TopPicksStore) Get(ctx context.Context) (*models.CacheEntry[[]models.TopPick], error) {
	sql := fmt.Sprintf("SELECT * FROM %s ORDER BY fetched_at DESC LIMIT 1", tableTopPicks)
	results, err := surrealdb.Query[[]models.CacheEntry[[]models.TopPick]](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to select top picks: %w", err)
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return &(*results)[0].Result[0], nil
	}
	return nil, nil
}

// Set replaces the snapshot as a whole.
func (s *TopPicksStore) Set(ctx context.Context, picks []models.TopPick, ttl time.Duration) error {
	if picks == nil {
		picks = []models.TopPick{}
	}
	entry := models.NewCacheEntry(uuid.New().String(), picks, s.now(), ttl)
	if err := replaceEntry(ctx, s.db, tableTopPicks, entry, true); err != nil {
		return err
	}
	s.logger.Debug().Int("picks", len(picks)).Msg("Top picks snapshot replaced")
	return nil
}

func (s *TopPicksStore) DeleteExpired(ctx context.Context) (int, error) {
	return deleteExpired(ctx, s.db, tableTopPicks, s.now())
}
