package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdtoconnect-creator/etf-compass/internal/clients/polygon"
	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/storage/memory"
)

var testNow = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

// --- fakes ---

type aggCall struct {
	symbol     string
	start, end time.Time
}

type fakeClient struct {
	mu        sync.Mutex
	quoteErr  map[string]error
	noQuote   map[string]bool
	prevClose map[string]float64
	bars      map[string][]models.Bar
	panicOn   string

	quoteCalls []string
	prevCalls  []string
	aggCalls   []aggCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		quoteErr:  map[string]error{},
		noQuote:   map[string]bool{},
		prevClose: map[string]float64{},
		bars:      map[string][]models.Bar{},
	}
}

func (f *fakeClient) GetAggregates(ctx context.Context, symbol string, granularity models.Granularity, start, end time.Time) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggCalls = append(f.aggCalls, aggCall{symbol, start, end})
	return f.bars[symbol], nil
}

func (f *fakeClient) GetLatestQuote(ctx context.Context, symbol string) (*models.NBBO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls = append(f.quoteCalls, symbol)
	if symbol == f.panicOn {
		panic("upstream exploded")
	}
	if err := f.quoteErr[symbol]; err != nil {
		return nil, err
	}
	if f.noQuote[symbol] {
		return nil, nil
	}
	return &models.NBBO{Bid: 99, Ask: 101}, nil
}

func (f *fakeClient) GetPreviousClose(ctx context.Context, symbol string) (*models.PreviousClose, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prevCalls = append(f.prevCalls, symbol)
	if c, ok := f.prevClose[symbol]; ok {
		return &models.PreviousClose{Symbol: symbol, Close: c}, nil
	}
	return nil, nil
}

func (f *fakeClient) GetTickerDetails(ctx context.Context, symbol string) (*models.TickerDetails, error) {
	return nil, nil
}

type fakeGate struct {
	open bool
}

func (g fakeGate) IsOpen() bool { return g.open }

func (g fakeGate) StatusMessage() string {
	if g.open {
		return "Market is open"
	}
	return "Market closed, opens in 14h"
}

type fakeScorer struct {
	scores map[string]int
	err    error
	calls  int
}

func (f *fakeScorer) GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &models.AnalysisResult{Symbol: symbol, Score: f.scores[symbol], RiskLevel: models.LevelLow}, nil
}

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

type failingLeases struct{}

func (failingLeases) Acquire(ctx context.Context, tier, holder string, ttl time.Duration) (bool, error) {
	return false, errors.New("storage unavailable")
}

func (failingLeases) Release(ctx context.Context, tier, holder string) error { return nil }

type brokenLeaseStorage struct {
	*memory.Manager
}

func (b brokenLeaseStorage) LeaseStore() interfaces.LeaseStore { return failingLeases{} }

// --- helpers ---

func dailyBars(n int, start float64) []models.Bar {
	bars := make([]models.Bar, n)
	for i := range bars {
		ts := testNow.AddDate(0, 0, i-n).Truncate(24 * time.Hour)
		c := start + float64(i)
		bars[i] = models.Bar{Timestamp: ts.UnixMilli(), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func fetchConfig(tiers ...common.TierConfig) common.FetchConfig {
	return common.FetchConfig{
		CallDelay:       "12s",
		BatchDelay:      "5s",
		LeaseTTL:        "15m",
		FirstFetchDays:  90,
		IncrementalDays: 1,
		Tiers:           tiers,
	}
}

func dailyTier(symbols []string, batch int, collections ...string) common.TierConfig {
	return common.TierConfig{Name: "test", Symbols: symbols, Cadence: "daily", BatchSize: batch, Collections: collections}
}

type harness struct {
	svc     *Service
	client  *fakeClient
	storage *memory.Manager
	sleeps  *recordedSleeps
}

func newHarness(t *testing.T, gate Gate, cfg common.FetchConfig, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		client:  newFakeClient(),
		storage: memory.NewManager(common.NewSilentLogger(), memory.WithClock(func() time.Time { return testNow })),
		sleeps:  &recordedSleeps{},
	}
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithSleep(h.sleeps.sleep)}, opts...)
	h.svc = NewService(h.client, h.storage, gate, cfg, opts...)
	return h
}

func runLogs(t *testing.T, storage interfaces.StorageManager) []*models.FetchRunLog {
	t.Helper()
	runs, err := storage.RunLogStore().ListRecent(context.Background(), 10)
	require.NoError(t, err)
	return runs
}

// --- tests ---

func TestRun_PartialWhenOneSymbolRateLimited(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A", "B"}, 5, CollectionQuotes)))
	h.client.quoteErr["B"] = &polygon.APIError{StatusCode: 429, Message: "rate limited", Endpoint: "/last/nbbo/B"}

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.RunPartial, summary.Status)
	assert.Equal(t, 1, summary.Collections[CollectionQuotes].Success)
	assert.Equal(t, 1, summary.Collections[CollectionQuotes].Failed)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "B: ")
	assert.Contains(t, summary.Errors[0], "429")
	assert.Equal(t, 1, summary.FetchCount)

	runs := runLogs(t, h.storage)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunPartial, runs[0].Status)
	assert.Equal(t, 1, runs[0].FetchCount)
	assert.Equal(t, 1, runs[0].FailedCount)
	assert.Equal(t, []string{"A", "B"}, runs[0].Symbols)

	cached, err := h.storage.QuoteCache().Get(context.Background(), "A")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 100.0, cached.Payload.Midpoint)
}

func TestRun_ClientCalledOncePerSymbol(t *testing.T) {
	symbols := []string{"VOO", "QQQ", "voo", "SCHD", "QQQ", "VTI"}
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier(symbols, 2, CollectionQuotes, CollectionHistorical)))
	h.client.noQuote["QQQ"] = true

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)

	want := []string{"VOO", "QQQ", "SCHD", "VTI"}
	assert.Equal(t, 4, summary.Symbols)
	assert.Equal(t, want, h.client.quoteCalls)
	require.Len(t, h.client.aggCalls, len(want))
	for i, c := range h.client.aggCalls {
		assert.Equal(t, want[i], c.symbol)
	}
	// failed quotes skip the previous close lookup
	assert.Equal(t, []string{"VOO", "SCHD", "VTI"}, h.client.prevCalls)
	assert.Contains(t, summary.Errors, "QQQ: no quote data available")
}

func TestRun_PacingBetweenSymbolsAndBatches(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A", "B", "C", "D", "E"}, 2, CollectionQuotes)))

	_, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{12 * time.Second, 5 * time.Second, 12 * time.Second, 5 * time.Second}, h.sleeps.waits)
}

func TestRun_SingleSymbolNeverSleeps(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A"}, 5, CollectionQuotes)))

	_, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, h.sleeps.waits)
}

func TestRun_SkippedWhenMarketClosed(t *testing.T) {
	tier := dailyTier([]string{"A"}, 5, CollectionQuotes)
	tier.Cadence = "intraday"
	h := newHarness(t, fakeGate{open: false}, fetchConfig(tier))

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunSkipped, summary.Status)
	assert.Equal(t, "Market closed, opens in 14h", summary.Message)
	assert.Empty(t, h.client.quoteCalls)
	assert.Empty(t, runLogs(t, h.storage))

	summary, err = h.svc.Run(context.Background(), "test", RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, summary.Status)
	assert.Len(t, h.client.quoteCalls, 1)
}

func TestRun_DailyTierIgnoresGate(t *testing.T) {
	h := newHarness(t, fakeGate{open: false}, fetchConfig(dailyTier([]string{"A"}, 5, CollectionQuotes)))

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, summary.Status)
}

func TestRun_FirstFetchThenIncremental(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A", "B"}, 5, CollectionHistorical)))
	ctx := context.Background()
	h.client.bars["A"] = dailyBars(60, 100)
	h.client.bars["B"] = dailyBars(60, 50)

	summary, err := h.svc.Run(ctx, "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeFirst, summary.Mode)
	require.Len(t, h.client.aggCalls, 2)
	assert.Equal(t, testNow.AddDate(0, 0, -90), h.client.aggCalls[0].start)
	assert.Equal(t, testNow, h.client.aggCalls[0].end)

	before, err := h.storage.HistoricalCache().Get(ctx, "A", models.GranularityDay)
	require.NoError(t, err)
	require.Len(t, before.Payload.Bars, 60)

	// the incremental window overlaps the last cached bar
	last := h.client.bars["A"][59]
	next := last
	next.Timestamp = last.Time().AddDate(0, 0, 1).UnixMilli()
	next.Close = 999
	h.client.bars["A"] = []models.Bar{last, next}
	h.client.aggCalls = nil

	summary, err = h.svc.Run(ctx, "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, summary.Mode)
	assert.Equal(t, testNow.AddDate(0, 0, -1), h.client.aggCalls[0].start)

	after, err := h.storage.HistoricalCache().Get(ctx, "A", models.GranularityDay)
	require.NoError(t, err)
	require.Len(t, after.Payload.Bars, 61)
	assert.Equal(t, before.Payload.Bars, after.Payload.Bars[:60])
	assert.Equal(t, 999.0, after.Payload.Bars[60].Close)
}

func TestRun_MixedModeFetchesMissingSymbolsInFull(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A", "B"}, 5, CollectionHistorical)))
	ctx := context.Background()
	require.NoError(t, h.storage.HistoricalCache().Set(ctx, "A", models.GranularityDay, dailyBars(5, 10), testNow, testNow, true, time.Hour))
	h.client.bars["A"] = dailyBars(1, 10)
	h.client.bars["B"] = dailyBars(30, 10)

	summary, err := h.svc.Run(ctx, "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, ModeMixed, summary.Mode)
	assert.Equal(t, testNow.AddDate(0, 0, -1), h.client.aggCalls[0].start)
	assert.Equal(t, testNow.AddDate(0, 0, -90), h.client.aggCalls[1].start)
}

func TestRun_EmptyHistoricalIsFailure(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A"}, 5, CollectionHistorical)))

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, summary.Status)
	assert.Equal(t, []string{"A: no historical data available"}, summary.Errors)
}

func TestRun_CollectionsRestriction(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A"}, 5, CollectionQuotes, CollectionHistorical)))
	h.client.bars["A"] = dailyBars(3, 10)

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{Collections: []string{CollectionHistorical}})
	require.NoError(t, err)
	assert.Empty(t, h.client.quoteCalls)
	assert.Len(t, h.client.aggCalls, 1)
	assert.NotContains(t, summary.Collections, CollectionQuotes)
}

func TestRun_LeaseHeldSkips(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A"}, 5, CollectionQuotes)))
	ok, err := h.storage.LeaseStore().Acquire(context.Background(), "test", "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.RunSkipped, summary.Status)
	assert.Equal(t, "tier run already in progress", summary.Message)
	assert.Empty(t, h.client.quoteCalls)
}

func TestRun_LeaseReleasedAfterRun(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A"}, 5, CollectionQuotes)))

	_, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.NoError(t, err)

	ok, err := h.storage.LeaseStore().Acquire(context.Background(), "test", "next-run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_LeaseStoreFailureIsRunLevel(t *testing.T) {
	mem := memory.NewManager(common.NewSilentLogger(), memory.WithClock(func() time.Time { return testNow }))
	client := newFakeClient()
	svc := NewService(client, brokenLeaseStorage{mem}, fakeGate{open: true},
		fetchConfig(dailyTier([]string{"A", "B"}, 5, CollectionQuotes)), WithClock(func() time.Time { return testNow }))

	summary, err := svc.Run(context.Background(), "test", RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage unavailable")
	require.NotNil(t, summary)
	assert.Equal(t, models.RunFailed, summary.Status)
	assert.NotEmpty(t, summary.Error)

	runs := runLogs(t, mem)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.Equal(t, 0, runs[0].FetchCount)
	assert.Contains(t, runs[0].ErrorMessage, "storage unavailable")
}

func TestRun_PanicBecomesFailedRun(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A", "B"}, 5, CollectionQuotes)))
	h.client.panicOn = "B"

	summary, err := h.svc.Run(context.Background(), "test", RunOptions{})
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, summary.Status)

	runs := runLogs(t, h.storage)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].FetchCount)
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig(dailyTier([]string{"A", "B"}, 5, CollectionQuotes)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := h.svc.Run(ctx, "test", RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.RunFailed, summary.Status)
	assert.Len(t, runLogs(t, h.storage), 1)
}

func TestRun_UnknownTier(t *testing.T) {
	h := newHarness(t, fakeGate{open: true}, fetchConfig())

	_, err := h.svc.Run(context.Background(), "nope", RunOptions{})
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestRun_NamedSymbolSet(t *testing.T) {
	tier := common.TierConfig{Name: "realtime", SymbolSet: "tracked", Cadence: "daily", BatchSize: 5, Collections: []string{CollectionQuotes}}
	h := newHarness(t, fakeGate{open: true}, fetchConfig(tier))

	summary, err := h.svc.Run(context.Background(), "REALTIME", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, len(models.TrackedETFs), summary.Symbols)
	assert.Equal(t, models.TrackedSymbols(), h.client.quoteCalls)
	assert.Equal(t, models.RunSuccess, summary.Status)
}
