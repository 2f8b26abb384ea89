package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const writeAttempts = 3

func selectEntry[T any](ctx context.Context, db *surrealdb.DB, table, key string) (*models.CacheEntry[T], error) {
	entry, err := surrealdb.Select[models.CacheEntry[T]](ctx, db, surrealmodels.NewRecordID(table, key))
	if err != nil {
		return nil, fmt.Errorf("failed to select %s %s: %w", table, key, err)
	}
	return entry, nil
}

func upsertEntry[T any](ctx context.Context, db *surrealdb.DB, table string, entry *models.CacheEntry[T]) error {
	sql := "UPSERT $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(table, entry.Key), "data": entry}

	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		_, err := surrealdb.Query[[]models.CacheEntry[T]](ctx, db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to save %s %s after retries: %w", table, entry.Key, lastErr)
}

// replaceEntry deletes the record at entry.Key, or every row in the table
// when wholeTable is set, and creates entry in one transaction.
func replaceEntry[T any](ctx context.Context, db *surrealdb.DB, table string, entry *models.CacheEntry[T], wholeTable bool) error {
	target := "$rid"
	if wholeTable {
		target = table
	}
	sql := fmt.Sprintf("BEGIN TRANSACTION; DELETE %s; CREATE $rid CONTENT $data; COMMIT TRANSACTION;", target)
	vars := map[string]any{"rid": surrealmodels.NewRecordID(table, entry.Key), "data": entry}

	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		_, err := surrealdb.Query[any](ctx, db, sql, vars)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("failed to replace %s %s after retries: %w", table, entry.Key, lastErr)
}

func deleteExpired(ctx context.Context, db *surrealdb.DB, table string, now time.Time) (int, error) {
	sql := fmt.Sprintf("DELETE %s WHERE expires_at <= $now RETURN BEFORE", table)
	results, err := surrealdb.Query[[]map[string]any](ctx, db, sql, map[string]any{"now": now})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired %s: %w", table, err)
	}
	if results != nil && len(*results) > 0 {
		return len((*results)[0].Result), nil
	}
	return 0, nil
}

type countRow struct {
	Count int `json:"cnt"`
}

func count(ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (int, error) {
	results, err := surrealdb.Query[[]countRow](ctx, db, sql, vars)
	if err != nil {
		return 0, err
	}
	if results != nil && len(*results) > 0 && len((*results)[0].Result) > 0 {
		return (*results)[0].Result[0].Count, nil
	}
	return 0, nil
}

func kindStats(ctx context.Context, db *surrealdb.DB, table string, now time.Time) (models.KindStats, error) {
	total, err := count(ctx, db, fmt.Sprintf("SELECT count() AS cnt FROM %s GROUP ALL", table), nil)
	if err != nil {
		return models.KindStats{}, fmt.Errorf("failed to count %s: %w", table, err)
	}
	expired, err := count(ctx, db, fmt.Sprintf("SELECT count() AS cnt FROM %s WHERE expires_at <= $now GROUP ALL", table), map[string]any{"now": now})
	if err != nil {
		return models.KindStats{}, fmt.Errorf("failed to count expired %s: %w", table, err)
	}
	return models.KindStats{Total: total, Expired: expired}, nil
}
