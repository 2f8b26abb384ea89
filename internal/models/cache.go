package models

import "time"

// StalenessWindow is the grace band before expiry inside which an entry is
// still served but reported as stale.
const StalenessWindow = 5 * time.Minute

// CacheKind names a cached record kind.
type CacheKind string

const (
	CacheKindQuote      CacheKind = "quote"
	CacheKindHistorical CacheKind = "historical"
	CacheKindTopPicks   CacheKind = "topPicks"
	CacheKindPortfolio  CacheKind = "portfolio"
)

// CacheStatus describes an entry relative to the current instant.
type CacheStatus string

const (
	CacheFresh   CacheStatus = "fresh"
	CacheStale   CacheStatus = "stale"
	CacheExpired CacheStatus = "expired"
	CacheMissing CacheStatus = "missing"
)

// CacheEntry is one cached payload with its lifetime.
type CacheEntry[T any] struct {
	Key       string    `json:"key"`
	Payload   T         `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCacheEntry stamps a payload fetched at now with the given ttl.
func NewCacheEntry[T any](key string, payload T, now time.Time, ttl time.Duration) *CacheEntry[T] {
	return &CacheEntry[T]{
		Key:       key,
		Payload:   payload,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether now is at or past expiresAt.
func IsExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}

// IsStale reports whether expiry is less than StalenessWindow away.
// Expired entries are also stale.
func IsStale(expiresAt, now time.Time) bool {
	return expiresAt.Sub(now) < StalenessWindow
}

// StatusAt classifies an expiry instant. A nil entry is CacheMissing.
func StatusAt(expiresAt, now time.Time) CacheStatus {
	switch {
	case IsExpired(expiresAt, now):
		return CacheExpired
	case IsStale(expiresAt, now):
		return CacheStale
	default:
		return CacheFresh
	}
}

// Status classifies the entry at now.
func (e *CacheEntry[T]) Status(now time.Time) CacheStatus {
	if e == nil {
		return CacheMissing
	}
	return StatusAt(e.ExpiresAt, now)
}

// IsExpired reports whether the entry has expired at now.
func (e *CacheEntry[T]) IsExpired(now time.Time) bool {
	return IsExpired(e.ExpiresAt, now)
}

// IsStale reports whether the entry is inside the grace band (or past it) at now.
func (e *CacheEntry[T]) IsStale(now time.Time) bool {
	return IsStale(e.ExpiresAt, now)
}

// KindStats counts entries of one kind.
type KindStats struct {
	Total   int `json:"total"`
	Expired int `json:"expired"`
}

// CacheStats counts cached entries per kind.
type CacheStats struct {
	Quote      KindStats `json:"quote"`
	Historical KindStats `json:"historical"`
	TopPicks   KindStats `json:"topPicks"`
	Portfolio  KindStats `json:"portfolio"`
}

// CleanupResult reports how many expired entries were removed per kind.
type CleanupResult struct {
	Quote      int `json:"quote"`
	Historical int `json:"historical"`
	TopPicks   int `json:"topPicks"`
	Portfolio  int `json:"portfolio"`
}

// Total sums all kinds.
func (r CleanupResult) Total() int {
	return r.Quote + r.Historical + r.TopPicks + r.Portfolio
}
