package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// LeaseStore grants per-tier run leases. A lease is a record keyed by tier;
// CREATE fails while it exists and the conditional UPDATE only takes over
// an expired lease or one the caller already holds.
type LeaseStore struct {
	db     *surrealdb.DB
	logger *common.Logger
	now    func() time.Time
}

func NewLeaseStore(db *surrealdb.DB, logger *common.Logger, now func() time.Time) *LeaseStore {
	return &LeaseStore{db: db, logger: logger, now: now}
}

func (s *LeaseStore) Acquire(ctx context.Context, tier, holder string, ttl time.Duration) (bool, error) {
	now := s.now()
	lease := models.Lease{Tier: tier, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	rid := surrealmodels.NewRecordID(tableLease, tier)

	_, createErr := surrealdb.Query[[]models.Lease](ctx, s.db, "CREATE $rid CONTENT $data", map[string]any{"rid": rid, "data": lease})
	if createErr == nil {
		return true, nil
	}
	if !strings.Contains(strings.ToLower(createErr.Error()), "already exists") {
		return false, fmt.Errorf("failed to create lease %s: %w", tier, createErr)
	}

	sql := "UPDATE $rid CONTENT $data WHERE expires_at <= $now OR holder = $holder"
	results, err := surrealdb.Query[[]models.Lease](ctx, s.db, sql, map[string]any{
		"rid":    rid,
		"data":   lease,
		"now":    now,
		"holder": holder,
	})
	if err != nil {
		return false, fmt.Errorf("failed to take over lease %s: %w", tier, err)
	}

	acquired := results != nil && len(*results) > 0 && len((*results)[0].Result) > 0
	if !acquired {
		s.logger.Debug().Str("tier", tier).Str("holder", holder).Msg("Lease held elsewhere")
	}
	return acquired, nil
}

// Release drops the lease if holder still owns it.
func (s *LeaseStore) Release(ctx context.Context, tier, holder string) error {
	sql := "DELETE $rid WHERE holder = $holder"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(tableLease, tier), "holder": holder}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", tier, err)
	}
	return nil
}
