package surrealdb

import (
	"context"
	"testing"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func dayBars(start time.Time, days ...int) []models.Bar {
	out := make([]models.Bar, len(days))
	for i, d := range days {
		out[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, d).UnixMilli(),
			Open:      float64(100 + d),
			High:      float64(101 + d),
			Low:       float64(99 + d),
			Close:     float64(100+d) + 0.5,
			Volume:    1e6,
		}
	}
	return out
}

func TestQuoteStore_RoundTrip(t *testing.T) {
	clock := newTestClock()
	store := testManager(t, clock).quoteStore
	ctx := context.Background()

	rec := models.QuoteRecord{Symbol: "VOO", Bid: 499.5, Ask: 500.5, Midpoint: 500, PreviousClose: ptr(495), Change: ptr(5), ChangePercent: ptr(1.0101)}
	require.NoError(t, store.Set(ctx, "voo", rec, 35*time.Minute))

	got, err := store.Get(ctx, "VOO")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "VOO", got.Key)
	assert.Equal(t, rec.Midpoint, got.Payload.Midpoint)
	require.NotNil(t, got.Payload.ChangePercent)
	assert.InDelta(t, 1.0101, *got.Payload.ChangePercent, 1e-9)
	assert.True(t, got.ExpiresAt.Equal(clock.Now().Add(35*time.Minute)))
	assert.Equal(t, models.CacheFresh, got.Status(clock.Now()))
}

func TestQuoteStore_MissingIsNil(t *testing.T) {
	store := testManager(t, newTestClock()).quoteStore

	got, err := store.Get(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := store.Exists(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuoteStore_ExistsOnlyWhileFresh(t *testing.T) {
	clock := newTestClock()
	store := testManager(t, clock).quoteStore
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "QQQ", models.QuoteRecord{Symbol: "QQQ"}, 35*time.Minute))

	ok, err := store.Exists(ctx, "QQQ")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(35 * time.Minute)
	ok, err = store.Exists(ctx, "QQQ")
	require.NoError(t, err)
	assert.False(t, ok)

	// expired entries stay readable until cleanup
	got, err := store.Get(ctx, "QQQ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.CacheExpired, got.Status(clock.Now()))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHistoricalStore_IncrementalAppendKeepsPrefix(t *testing.T) {
	clock := newTestClock()
	store := testManager(t, clock).historicalStore
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Set(ctx, "VOO", models.GranularityDay, dayBars(start, 0, 1, 2), start, start.AddDate(0, 0, 2), true, 35*time.Minute))
	first, err := store.Get(ctx, "VOO", models.GranularityDay)
	require.NoError(t, err)
	require.NotNil(t, first)

	clock.Advance(time.Hour)
	require.NoError(t, store.Set(ctx, "VOO", models.GranularityDay, dayBars(start, 2, 3), start.AddDate(0, 0, 2), start.AddDate(0, 0, 3), false, 35*time.Minute))

	second, err := store.Get(ctx, "VOO", models.GranularityDay)
	require.NoError(t, err)
	require.NotNil(t, second)

	require.Len(t, second.Payload.Bars, 4)
	assert.Equal(t, first.Payload.Bars, second.Payload.Bars[:3])
	assert.True(t, second.Payload.WindowStart.Equal(start))
	assert.True(t, second.Payload.WindowEnd.Equal(start.AddDate(0, 0, 3)))
	assert.True(t, second.FetchedAt.Equal(clock.Now()))
	assert.True(t, second.ExpiresAt.Equal(clock.Now().Add(35*time.Minute)))
}

func TestHistoricalStore_FirstFetchReplaces(t *testing.T) {
	clock := newTestClock()
	store := testManager(t, clock).historicalStore
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Set(ctx, "QQQ", models.GranularityDay, dayBars(start, 0, 1, 2, 3), start, start.AddDate(0, 0, 3), true, time.Hour))
	require.NoError(t, store.Set(ctx, "QQQ", models.GranularityDay, dayBars(start, 10, 11), start.AddDate(0, 0, 10), start.AddDate(0, 0, 11), true, time.Hour))

	got, err := store.Get(ctx, "QQQ", models.GranularityDay)
	require.NoError(t, err)
	require.Len(t, got.Payload.Bars, 2)
	assert.Equal(t, start.AddDate(0, 0, 10).UnixMilli(), got.Payload.Bars[0].Timestamp)
}

func TestHistoricalStore_IncrementalWithoutPriorCreates(t *testing.T) {
	clock := newTestClock()
	store := testManager(t, clock).historicalStore
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Set(ctx, "SCHD", models.GranularityDay, dayBars(start, 0), start, start, false, time.Hour))

	ok, err := store.Exists(ctx, "SCHD", models.GranularityDay)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "SCHD", models.GranularityHour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTopPicksStore_ReplacesSnapshot(t *testing.T) {
	clock := newTestClock()
	mgr := testManager(t, clock)
	store := mgr.topPicksStore
	ctx := context.Background()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.Set(ctx, []models.TopPick{{Symbol: "VOO", Rank: 1}}, time.Hour))
	clock.Advance(time.Minute)
	require.NoError(t, store.Set(ctx, []models.TopPick{{Symbol: "QQQ", Rank: 1}, {Symbol: "VTI", Rank: 2}}, time.Hour))

	got, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Payload, 2)
	assert.Equal(t, "QQQ", got.Payload[0].Symbol)

	stats, err := mgr.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TopPicks.Total)
}

func TestPortfolioStore_KeyIsOrderIndependent(t *testing.T) {
	store := testManager(t, newTestClock()).portfolioStore
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, []string{"vti", "VOO"}, map[string]any{"totalValue": 1234.5}, time.Hour))

	got, err := store.Get(ctx, []string{"VOO", "VTI"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "VOO,VTI", got.Key)
	assert.Equal(t, []string{"VOO", "VTI"}, got.Payload.Symbols)
	assert.Equal(t, 1234.5, got.Payload.Data["totalValue"])
}
