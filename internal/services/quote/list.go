package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// ErrUnknownTier rejects a browse tier other than top50 or all.
var ErrUnknownTier = errors.New("unknown tier")

// ListOptions filters the ETF browse listing.
type ListOptions struct {
	Tier   string // symbol set: top50 or all (default)
	Search string // case-insensitive match on symbol, name or category
	Sector string // sector name, case-insensitive
}

// ETFListing is one browse row: fund metadata joined with its cached quote.
// Price fields are zero and HasData false when nothing is cached.
type ETFListing struct {
	Symbol        string             `json:"symbol"`
	Name          string             `json:"name"`
	Category      string             `json:"category"`
	Sector        string             `json:"sector"`
	Price         float64            `json:"price"`
	Change        float64            `json:"change"`
	ChangePercent float64            `json:"changePercent"`
	Bid           float64            `json:"bid"`
	Ask           float64            `json:"ask"`
	PreviousClose float64            `json:"previousClose"`
	HasData       bool               `json:"hasData"`
	Cache         models.CacheStatus `json:"cache"`
	FetchedAt     *time.Time         `json:"fetchedAt,omitempty"`
}

// ETFList is the browse response.
type ETFList struct {
	ETFs    []ETFListing `json:"etfs"`
	Sectors []string     `json:"sectors"`
	Total   int          `json:"total"`
	Tier    string       `json:"tier"`
}

// ListETFs joins the funds of a symbol set with whatever the quote cache
// holds for them. It never calls the upstream; expired quotes are listed
// with their cache status.
func (s *Service) ListETFs(ctx context.Context, opts ListOptions) (*ETFList, error) {
	tier := strings.ToLower(strings.TrimSpace(opts.Tier))
	if tier == "" {
		tier = models.SymbolSetAll
	}
	if tier != models.SymbolSetTop50 && tier != models.SymbolSetAll {
		return nil, fmt.Errorf("%w %q", ErrUnknownTier, opts.Tier)
	}
	symbols, err := models.SymbolSet(tier)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(opts.Search))
	sector := strings.TrimSpace(opts.Sector)
	now := s.now()

	list := &ETFList{ETFs: []ETFListing{}, Tier: tier}
	var matched []string
	for _, symbol := range symbols {
		meta, _ := models.LookupETF(symbol)
		if search != "" && !matchesSearch(symbol, meta, search) {
			continue
		}
		if sector != "" && !strings.EqualFold(meta.Sector, sector) {
			continue
		}

		entry, err := s.storage.QuoteCache().Get(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("read quote cache for %s: %w", symbol, err)
		}
		list.ETFs = append(list.ETFs, listing(symbol, meta, entry, now))
		matched = append(matched, symbol)
	}

	list.Sectors = models.Sectors(matched)
	list.Total = len(list.ETFs)
	return list, nil
}

func matchesSearch(symbol string, meta models.ETFMeta, term string) bool {
	return strings.Contains(strings.ToLower(symbol), term) ||
		strings.Contains(strings.ToLower(meta.Name), term) ||
		strings.Contains(strings.ToLower(meta.Category), term)
}

func listing(symbol string, meta models.ETFMeta, entry *models.CacheEntry[models.QuoteRecord], now time.Time) ETFListing {
	row := ETFListing{
		Symbol:   symbol,
		Name:     meta.Name,
		Category: meta.Category,
		Sector:   meta.Sector,
		Cache:    models.CacheMissing,
	}
	if entry == nil {
		return row
	}

	q := entry.Payload
	fetched := entry.FetchedAt
	row.HasData = true
	row.Cache = entry.Status(now)
	row.FetchedAt = &fetched
	row.Price = q.Midpoint
	row.Bid = q.Bid
	row.Ask = q.Ask
	if q.PreviousClose != nil {
		row.PreviousClose = *q.PreviousClose
	}
	if q.Change != nil {
		row.Change = *q.Change
	}
	if q.ChangePercent != nil {
		row.ChangePercent = models.Round2(*q.ChangePercent)
	}
	return row
}
