package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

var (
	errNoQuote      = errors.New("no quote data available")
	errNoHistorical = errors.New("no historical data available")
)

// detectModes decides first fetch vs incremental per symbol. When no symbol
// has a cached series at all, the whole run is a first fetch.
func (s *Service) detectModes(ctx context.Context, symbols []string) (map[string]bool, string, error) {
	firstFetch := make(map[string]bool, len(symbols))
	existing := 0
	for _, sym := range symbols {
		entry, err := s.storage.HistoricalCache().Get(ctx, sym, models.GranularityDay)
		if err != nil {
			return nil, "", fmt.Errorf("check historical cache for %s: %w", sym, err)
		}
		firstFetch[sym] = entry == nil
		if entry != nil {
			existing++
		}
	}

	switch existing {
	case 0:
		return firstFetch, ModeFirst, nil
	case len(symbols):
		return firstFetch, ModeIncremental, nil
	default:
		return firstFetch, ModeMixed, nil
	}
}

// walk partitions symbols into batches and fetches them sequentially.
// callDelay separates symbols inside a batch, batchDelay separates batches,
// and nothing follows the last symbol.
func (s *Service) walk(ctx context.Context, tier common.TierConfig, symbols, collections []string, firstFetch map[string]bool, summary *Summary) error {
	perSymbol := make([]string, 0, 2)
	for _, c := range collections {
		if c == CollectionQuotes || c == CollectionHistorical {
			perSymbol = append(perSymbol, c)
		}
	}
	if len(perSymbol) == 0 {
		return nil
	}

	callDelay := s.config.GetCallDelay()
	batchDelay := s.config.GetBatchDelay()
	batches := chunk(symbols, tier.BatchSize)

	for bi, batch := range batches {
		if bi > 0 {
			s.logger.Debug().Str("tier", tier.Name).Int("batch", bi+1).Int("of", len(batches)).Msg("Starting next batch")
			if err := s.sleep(ctx, batchDelay); err != nil {
				return fmt.Errorf("batch delay interrupted: %w", err)
			}
		}

		for i, sym := range batch {
			if i > 0 {
				if err := s.sleep(ctx, callDelay); err != nil {
					return fmt.Errorf("call delay interrupted: %w", err)
				}
			}

			ok := true
			for _, c := range perSymbol {
				var err error
				switch c {
				case CollectionQuotes:
					err = s.fetchQuote(ctx, tier, sym)
				case CollectionHistorical:
					err = s.fetchHistorical(ctx, tier, sym, firstFetch[sym])
				}

				result := summary.Collections[c]
				if err != nil {
					ok = false
					msg := fmt.Sprintf("%s: %s", sym, err.Error())
					result.Failed++
					result.Errors = append(result.Errors, msg)
					summary.Errors = append(summary.Errors, msg)
					s.logger.Warn().Err(err).Str("symbol", sym).Str("collection", c).Msg("Symbol fetch failed")
					continue
				}
				result.Success++
			}
			if ok {
				summary.FetchCount++
			}
		}
	}
	return nil
}

func (s *Service) fetchQuote(ctx context.Context, tier common.TierConfig, symbol string) error {
	quote, err := s.client.GetLatestQuote(ctx, symbol)
	if err != nil {
		return err
	}
	if quote == nil {
		return errNoQuote
	}

	prev, err := s.client.GetPreviousClose(ctx, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Previous close unavailable, caching quote without change")
		prev = nil
	}

	record := models.NewQuoteRecord(symbol, *quote, prev)
	if err := s.storage.QuoteCache().Set(ctx, symbol, record, tier.GetQuoteTTL()); err != nil {
		return fmt.Errorf("cache quote: %w", err)
	}
	return nil
}

func (s *Service) fetchHistorical(ctx context.Context, tier common.TierConfig, symbol string, isFirstFetch bool) error {
	days := s.config.IncrementalDays
	if isFirstFetch {
		days = s.config.FirstFetchDays
	}
	if days <= 0 {
		days = 1
	}

	end := s.now()
	start := end.AddDate(0, 0, -days)

	bars, err := s.client.GetAggregates(ctx, symbol, models.GranularityDay, start, end)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return errNoHistorical
	}

	if err := s.storage.HistoricalCache().Set(ctx, symbol, models.GranularityDay, bars, start, end, isFirstFetch, tier.GetHistoricalTTL()); err != nil {
		return fmt.Errorf("cache historical: %w", err)
	}

	s.logger.Debug().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Bool("first_fetch", isFirstFetch).
		Msg("Historical bars cached")
	return nil
}

// chunk splits symbols into batches of size n; n <= 0 yields one batch.
func chunk(symbols []string, n int) [][]string {
	if n <= 0 || n >= len(symbols) {
		return [][]string{symbols}
	}
	var out [][]string
	for i := 0; i < len(symbols); i += n {
		end := i + n
		if end > len(symbols) {
			end = len(symbols)
		}
		out = append(out, symbols[i:end])
	}
	return out
}
