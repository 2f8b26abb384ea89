package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const defaultRunLogLimit = 20

// runLogRecord is the stored form of a FetchRunLog. The run id lives in
// run_id because id is taken by the record id.
type runLogRecord struct {
	RunID        string           `json:"run_id"`
	Tier         string           `json:"tier"`
	Symbols      []string         `json:"symbols"`
	Status       models.RunStatus `json:"status"`
	FetchCount   int              `json:"fetch_count"`
	FailedCount  int              `json:"failed_count"`
	DurationMS   int64            `json:"duration_ms"`
	ErrorMessage string           `json:"error_message,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
}

func toRunLogRecord(r *models.FetchRunLog) runLogRecord {
	return runLogRecord{
		RunID:        r.ID,
		Tier:         r.Tier,
		Symbols:      r.Symbols,
		Status:       r.Status,
		FetchCount:   r.FetchCount,
		FailedCount:  r.FailedCount,
		DurationMS:   r.DurationMS,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
	}
}

func (r runLogRecord) toModel() *models.FetchRunLog {
	return &models.FetchRunLog{
		ID:           r.RunID,
		Tier:         r.Tier,
		Symbols:      r.Symbols,
		Status:       r.Status,
		FetchCount:   r.FetchCount,
		FailedCount:  r.FailedCount,
		DurationMS:   r.DurationMS,
		ErrorMessage: r.ErrorMessage,
		StartedAt:    r.StartedAt,
	}
}

// RunLogStore is the append-only fetch audit log.
type RunLogStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewRunLogStore(db *surrealdb.DB, logger *common.Logger) *RunLogStore {
	return &RunLogStore{db: db, logger: logger}
}

// Append writes one run. A missing ID is assigned.
func (s *RunLogStore) Append(ctx context.Context, run *models.FetchRunLog) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	sql := "CREATE $rid CONTENT $data"
	vars := map[string]any{"rid": surrealmodels.NewRecordID(tableRunLog, run.ID), "data": toRunLogRecord(run)}

	if _, err := surrealdb.Query[[]runLogRecord](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}
	return nil
}

// ListRecent returns runs newest first.
func (s *RunLogStore) ListRecent(ctx context.Context, limit int) ([]*models.FetchRunLog, error) {
	if limit <= 0 {
		limit = defaultRunLogLimit
	}

	sql := fmt.Sprintf("SELECT * FROM %s ORDER BY started_at DESC LIMIT $limit", tableRunLog)
	results, err := surrealdb.Query[[]runLogRecord](ctx, s.db, sql, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}

	runs := []*models.FetchRunLog{}
	if results != nil && len(*results) > 0 {
		for _, r := range (*results)[0].Result {
			runs = append(runs, r.toModel())
		}
	}
	return runs, nil
}
