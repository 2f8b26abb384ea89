// Package memory implements the cache stores in process memory. It backs
// local runs without a database and the service-level tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/interfaces"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// Manager implements interfaces.StorageManager over maps guarded by one mutex.
type Manager struct {
	mu     sync.Mutex
	logger *common.Logger
	now    func() time.Time

	quotes     map[string]*models.CacheEntry[models.QuoteRecord]
	historical map[string]*models.CacheEntry[models.HistoricalSeries]
	topPicks   *models.CacheEntry[[]models.TopPick]
	portfolios map[string]*models.CacheEntry[models.PortfolioSnapshot]
	runs       []*models.FetchRunLog
	leases     map[string]models.Lease
}

var _ interfaces.StorageManager = (*Manager)(nil)

// Option configures the manager
type Option func(*Manager)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty in-memory store
func NewManager(logger *common.Logger, opts ...Option) *Manager {
	m := &Manager{
		logger:     logger,
		now:        time.Now,
		quotes:     make(map[string]*models.CacheEntry[models.QuoteRecord]),
		historical: make(map[string]*models.CacheEntry[models.HistoricalSeries]),
		portfolios: make(map[string]*models.CacheEntry[models.PortfolioSnapshot]),
		leases:     make(map[string]models.Lease),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) QuoteCache() interfaces.QuoteCache           { return quoteCache{m} }
func (m *Manager) HistoricalCache() interfaces.HistoricalCache { return historicalCache{m} }
func (m *Manager) TopPicksCache() interfaces.TopPicksCache     { return topPicksCache{m} }
func (m *Manager) PortfolioCache() interfaces.PortfolioCache   { return portfolioCache{m} }
func (m *Manager) RunLogStore() interfaces.RunLogStore         { return runLogStore{m} }
func (m *Manager) LeaseStore() interfaces.LeaseStore           { return leaseStore{m} }

func (m *Manager) CacheStats(ctx context.Context) (*models.CacheStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	stats := &models.CacheStats{
		Quote:      countMap(m.quotes, now),
		Historical: countMap(m.historical, now),
		Portfolio:  countMap(m.portfolios, now),
	}
	if m.topPicks != nil {
		stats.TopPicks.Total = 1
		if m.topPicks.IsExpired(now) {
			stats.TopPicks.Expired = 1
		}
	}
	return stats, nil
}

func (m *Manager) CleanupExpired(ctx context.Context) (*models.CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	result := &models.CleanupResult{
		Quote:      purgeMap(m.quotes, now),
		Historical: purgeMap(m.historical, now),
		Portfolio:  purgeMap(m.portfolios, now),
	}
	if m.topPicks != nil && m.topPicks.IsExpired(now) {
		m.topPicks = nil
		result.TopPicks = 1
	}
	return result, nil
}

func (m *Manager) Close() error {
	return nil
}

func countMap[T any](entries map[string]*models.CacheEntry[T], now time.Time) models.KindStats {
	ks := models.KindStats{Total: len(entries)}
	for _, e := range entries {
		if e.IsExpired(now) {
			ks.Expired++
		}
	}
	return ks
}

func purgeMap[T any](entries map[string]*models.CacheEntry[T], now time.Time) int {
	n := 0
	for k, e := range entries {
		if e.IsExpired(now) {
			delete(entries, k)
			n++
		}
	}
	return n
}

// clone returns a shallow copy so callers cannot mutate stored entries.
func clone[T any](e *models.CacheEntry[T]) *models.CacheEntry[T] {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

type quoteCache struct{ m *Manager }

func (q quoteCache) Get(ctx context.Context, symbol string) (*models.CacheEntry[models.QuoteRecord], error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	return clone(q.m.quotes[strings.ToUpper(symbol)]), nil
}

func (q quoteCache) Set(ctx context.Context, symbol string, quote models.QuoteRecord, ttl time.Duration) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	key := strings.ToUpper(symbol)
	q.m.quotes[key] = models.NewCacheEntry(key, quote, q.m.now(), ttl)
	return nil
}

func (q quoteCache) Exists(ctx context.Context, symbol string) (bool, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	e, ok := q.m.quotes[strings.ToUpper(symbol)]
	return ok && !e.IsExpired(q.m.now()), nil
}

func (q quoteCache) DeleteExpired(ctx context.Context) (int, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	return purgeMap(q.m.quotes, q.m.now()), nil
}

type historicalCache struct{ m *Manager }

func (h historicalCache) Get(ctx context.Context, symbol string, granularity models.Granularity) (*models.CacheEntry[models.HistoricalSeries], error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	e := clone(h.m.historical[models.HistoricalKey(symbol, granularity)])
	if e != nil {
		e.Payload.Bars = append([]models.Bar(nil), e.Payload.Bars...)
	}
	return e, nil
}

func (h historicalCache) Set(ctx context.Context, symbol string, granularity models.Granularity, bars []models.Bar, windowStart, windowEnd time.Time, isFirstFetch bool, ttl time.Duration) error {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	key := models.HistoricalKey(symbol, granularity)

	var series models.HistoricalSeries
	if existing, ok := h.m.historical[key]; ok && !isFirstFetch {
		series = existing.Payload.Append(bars, windowEnd)
	} else {
		series = models.NewHistoricalSeries(symbol, granularity, bars, windowStart, windowEnd)
	}
	h.m.historical[key] = models.NewCacheEntry(key, series, h.m.now(), ttl)
	return nil
}

func (h historicalCache) Exists(ctx context.Context, symbol string, granularity models.Granularity) (bool, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	e, ok := h.m.historical[models.HistoricalKey(symbol, granularity)]
	return ok && !e.IsExpired(h.m.now()), nil
}

func (h historicalCache) DeleteExpired(ctx context.Context) (int, error) {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return purgeMap(h.m.historical, h.m.now()), nil
}

type topPicksCache struct{ m *Manager }

func (t topPicksCache) Get(ctx context.Context) (*models.CacheEntry[[]models.TopPick], error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	e := clone(t.m.topPicks)
	if e != nil {
		e.Payload = append([]models.TopPick(nil), e.Payload...)
	}
	return e, nil
}

func (t topPicksCache) Set(ctx context.Context, picks []models.TopPick, ttl time.Duration) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	snapshot := append([]models.TopPick{}, picks...)
	t.m.topPicks = models.NewCacheEntry(uuid.New().String(), snapshot, t.m.now(), ttl)
	return nil
}

func (t topPicksCache) DeleteExpired(ctx context.Context) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.topPicks != nil && t.m.topPicks.IsExpired(t.m.now()) {
		t.m.topPicks = nil
		return 1, nil
	}
	return 0, nil
}

type portfolioCache struct{ m *Manager }

func (p portfolioCache) Get(ctx context.Context, symbols []string) (*models.CacheEntry[models.PortfolioSnapshot], error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return clone(p.m.portfolios[models.PortfolioKey(symbols)]), nil
}

func (p portfolioCache) Set(ctx context.Context, symbols []string, data map[string]any, ttl time.Duration) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	key := models.PortfolioKey(symbols)
	snapshot := models.PortfolioSnapshot{Symbols: models.NormalizeSymbols(symbols), Data: data}
	p.m.portfolios[key] = models.NewCacheEntry(key, snapshot, p.m.now(), ttl)
	return nil
}

func (p portfolioCache) DeleteExpired(ctx context.Context) (int, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return purgeMap(p.m.portfolios, p.m.now()), nil
}

type runLogStore struct{ m *Manager }

func (r runLogStore) Append(ctx context.Context, run *models.FetchRunLog) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	c := *run
	r.m.runs = append(r.m.runs, &c)
	return nil
}

func (r runLogStore) ListRecent(ctx context.Context, limit int) ([]*models.FetchRunLog, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	runs := make([]*models.FetchRunLog, len(r.m.runs))
	copy(runs, r.m.runs)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

type leaseStore struct{ m *Manager }

func (l leaseStore) Acquire(ctx context.Context, tier, holder string, ttl time.Duration) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	now := l.m.now()

	if cur, ok := l.m.leases[tier]; ok && cur.Holder != holder && now.Before(cur.ExpiresAt) {
		return false, nil
	}
	l.m.leases[tier] = models.Lease{Tier: tier, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	return true, nil
}

func (l leaseStore) Release(ctx context.Context, tier, holder string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if cur, ok := l.m.leases[tier]; ok && cur.Holder == holder {
		delete(l.m.leases, tier)
	}
	return nil
}
