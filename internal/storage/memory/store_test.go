package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

func newTestManager() (*Manager, *time.Time) {
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	m := NewManager(common.NewSilentLogger(), WithClock(func() time.Time { return now }))
	return m, &now
}

func TestHistorical_IncrementalAppend(t *testing.T) {
	m, now := newTestManager()
	ctx := context.Background()
	day := func(n int) models.Bar {
		return models.Bar{Timestamp: time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC).UnixMilli(), Close: float64(n)}
	}

	require.NoError(t, m.HistoricalCache().Set(ctx, "VOO", models.GranularityDay, []models.Bar{day(1), day(2)}, *now, *now, true, time.Hour))
	require.NoError(t, m.HistoricalCache().Set(ctx, "VOO", models.GranularityDay, []models.Bar{day(2), day(3)}, *now, now.Add(time.Hour), false, time.Hour))

	got, err := m.HistoricalCache().Get(ctx, "voo", models.GranularityDay)
	require.NoError(t, err)
	require.Len(t, got.Payload.Bars, 3)
	assert.Equal(t, 3.0, got.Payload.Bars[2].Close)

	// mutating a read does not leak into the store
	got.Payload.Bars[0].Close = -1
	again, _ := m.HistoricalCache().Get(ctx, "VOO", models.GranularityDay)
	assert.Equal(t, 1.0, again.Payload.Bars[0].Close)
}

func TestStatsAndCleanup(t *testing.T) {
	m, now := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.QuoteCache().Set(ctx, "VOO", models.QuoteRecord{}, time.Minute))
	require.NoError(t, m.QuoteCache().Set(ctx, "QQQ", models.QuoteRecord{}, time.Hour))
	require.NoError(t, m.TopPicksCache().Set(ctx, []models.TopPick{{Symbol: "VOO"}}, time.Minute))
	*now = now.Add(2 * time.Minute)

	stats, err := m.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.KindStats{Total: 2, Expired: 1}, stats.Quote)
	assert.Equal(t, models.KindStats{Total: 1, Expired: 1}, stats.TopPicks)

	res, err := m.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total())

	ok, err := m.QuoteCache().Exists(ctx, "QQQ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLease(t *testing.T) {
	m, now := newTestManager()
	ctx := context.Background()
	leases := m.LeaseStore()

	ok, _ := leases.Acquire(ctx, "realtime", "a", time.Minute)
	assert.True(t, ok)
	ok, _ = leases.Acquire(ctx, "realtime", "b", time.Minute)
	assert.False(t, ok)

	*now = now.Add(time.Minute)
	ok, _ = leases.Acquire(ctx, "realtime", "b", time.Minute)
	assert.True(t, ok)

	require.NoError(t, leases.Release(ctx, "realtime", "a"))
	ok, _ = leases.Acquire(ctx, "realtime", "a", time.Minute)
	assert.False(t, ok)
}

func TestRunLog_NewestFirst(t *testing.T) {
	m, now := newTestManager()
	ctx := context.Background()

	require.NoError(t, m.RunLogStore().Append(ctx, &models.FetchRunLog{Tier: "a", StartedAt: *now}))
	require.NoError(t, m.RunLogStore().Append(ctx, &models.FetchRunLog{Tier: "b", StartedAt: now.Add(time.Minute)}))

	runs, err := m.RunLogStore().ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].Tier)
	assert.NotEmpty(t, runs[0].ID)
}
