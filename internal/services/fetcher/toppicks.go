package fetcher

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/signals"
)

const (
	weeklyWindow    = 7
	heuristicBase   = 75.0
	lowRiskBelow    = 1.0 // percent dispersion of the weekly closes
	mediumRiskBelow = 3.0
)

// refreshTopPicks builds the ranked snapshot from cached quotes and series.
// It makes no upstream market data calls.
func (s *Service) refreshTopPicks(ctx context.Context, tier common.TierConfig, symbols []string) *TopPicksResult {
	picks := make([]models.TopPick, 0, len(symbols))
	for _, sym := range symbols {
		pick, err := s.buildPick(ctx, sym)
		if err != nil {
			return &TopPicksResult{Error: err.Error()}
		}
		if pick != nil {
			picks = append(picks, *pick)
		}
	}

	if len(picks) == 0 {
		return &TopPicksResult{Error: "no cached data to rank"}
	}

	Rank(picks)

	if err := s.storage.TopPicksCache().Set(ctx, picks, tier.GetTopPicksTTL()); err != nil {
		return &TopPicksResult{Error: fmt.Sprintf("cache top picks: %v", err)}
	}

	s.logger.Info().Str("tier", tier.Name).Int("picks", len(picks)).Msg("Top picks snapshot refreshed")
	return &TopPicksResult{Success: true, Count: len(picks)}
}

// buildPick returns nil when nothing is cached for the symbol.
func (s *Service) buildPick(ctx context.Context, symbol string) (*models.TopPick, error) {
	quoteEntry, err := s.storage.QuoteCache().Get(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("read cached quote for %s: %w", symbol, err)
	}
	seriesEntry, err := s.storage.HistoricalCache().Get(ctx, symbol, models.GranularityDay)
	if err != nil {
		return nil, fmt.Errorf("read cached series for %s: %w", symbol, err)
	}
	if quoteEntry == nil && seriesEntry == nil {
		return nil, nil
	}

	var closes, weekly []float64
	if seriesEntry != nil {
		closes = seriesEntry.Payload.Closes()
		weekly = seriesEntry.Payload.LastCloses(weeklyWindow)
	}

	// price: midpoint, then previous close, then the last cached close
	var price, prevClose float64
	if quoteEntry != nil {
		q := quoteEntry.Payload
		price = q.Midpoint
		if q.PreviousClose != nil {
			prevClose = *q.PreviousClose
		}
		if price <= 0 {
			price = prevClose
		}
	}
	if prevClose <= 0 && len(closes) >= 2 {
		prevClose = closes[len(closes)-2]
	}
	if price <= 0 && len(closes) > 0 {
		price = closes[len(closes)-1]
	}

	var change, changePct float64
	if prevClose > 0 {
		change = price - prevClose
		changePct = change / prevClose * 100
	}

	var weekChange float64
	if len(weekly) >= 2 {
		weekChange = signals.PercentChange(weekly[0], weekly[len(weekly)-1])
	}

	data := models.MarketData{
		Symbol:        symbol,
		Name:          models.ETFName(symbol),
		CurrentPrice:  price,
		Change:        change,
		ChangePercent: changePct,
		HourlyPrices:  weekly,
	}
	if n := len(seriesBars(seriesEntry)); n > 0 {
		last := seriesEntry.Payload.Bars[n-1]
		data.Open, data.High, data.Low, data.Volume = last.Open, last.High, last.Low, last.Volume
	}
	attachIndicators(&data, closes)

	score, risk := s.score(ctx, symbol, data, changePct, weekChange, weekly)

	history := make([]float64, len(weekly))
	for i, c := range weekly {
		history[i] = models.Round2(c)
	}

	return &models.TopPick{
		Symbol:        symbol,
		Name:          data.Name,
		Price:         models.Round2(price),
		Change:        models.Round2(change),
		ChangePercent: models.Round2(changePct),
		AIScore:       score,
		Signal:        models.SignalForScore(score),
		RiskLevel:     risk,
		WeeklyHistory: history,
		WeekChange:    models.Round2(weekChange),
	}, nil
}

// score asks the AI scorer when one is configured, falling back to the
// heuristic when it is absent or fails.
func (s *Service) score(ctx context.Context, symbol string, data models.MarketData, changePct, weekChange float64, weekly []float64) (int, models.Level) {
	risk := RiskFromCloses(weekly)
	if s.scorer != nil {
		result, err := s.scorer.GenerateScore(ctx, symbol, data)
		if err == nil && result != nil {
			if validLevel(result.RiskLevel) {
				risk = result.RiskLevel
			}
			return clampScore(float64(result.Score)), risk
		}
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("AI score unavailable, using heuristic")
	}
	return HeuristicScore(changePct, weekChange), risk
}

// HeuristicScore combines one-day and one-week momentum around a base of 75.
func HeuristicScore(changePct, weekChange float64) int {
	return clampScore(heuristicBase + 2*changePct + weekChange)
}

// RiskFromCloses grades the dispersion of a short close series.
func RiskFromCloses(closes []float64) models.Level {
	d := signals.Dispersion(closes)
	switch {
	case d < lowRiskBelow:
		return models.LevelLow
	case d < mediumRiskBelow:
		return models.LevelMedium
	default:
		return models.LevelHigh
	}
}

// Rank sorts picks by score, highest first, keeping input order for ties,
// and assigns ranks 1..N.
func Rank(picks []models.TopPick) {
	sort.SliceStable(picks, func(i, j int) bool {
		return picks[i].AIScore > picks[j].AIScore
	})
	for i := range picks {
		picks[i].Rank = i + 1
	}
}

func attachIndicators(data *models.MarketData, closes []float64) {
	if len(closes) >= 15 {
		rsi := signals.RSI(closes, 14)
		data.RSI = &rsi
	}
	if len(closes) >= 20 {
		sma := signals.SMA(closes, 20)
		data.SMA20 = &sma
	}
	if len(closes) >= 50 {
		sma := signals.SMA(closes, 50)
		data.SMA50 = &sma
	}
	if len(closes) >= 3 {
		vol := signals.Volatility(closes)
		data.Volatility = &vol
	}
}

func seriesBars(e *models.CacheEntry[models.HistoricalSeries]) []models.Bar {
	if e == nil {
		return nil
	}
	return e.Payload.Bars
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return 50
	}
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func validLevel(l models.Level) bool {
	return l == models.LevelLow || l == models.LevelMedium || l == models.LevelHigh
}
