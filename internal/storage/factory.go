// Package storage selects the cache backend.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/storage/memory"
	"github.com/bdtoconnect-creator/etf-compass/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendSurrealDB = "surrealdb"
	BackendMemory    = "memory"
)

// NewStorageManager creates the storage manager named by config.Storage.Backend.
// Supported backends: "surrealdb" (default), "memory".
func NewStorageManager(ctx context.Context, logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	backend := strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	if backend == "" {
		backend = BackendSurrealDB
	}

	switch backend {
	case BackendSurrealDB:
		mgr, err := surrealdb.NewManager(ctx, logger, config)
		if err != nil {
			return nil, err
		}
		return mgr, nil

	case BackendMemory:
		logger.Warn().Msg("Using in-memory storage; cached data is lost on restart")
		return memory.NewManager(logger), nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: surrealdb, memory)", backend)
	}
}
