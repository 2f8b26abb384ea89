package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// ErrNoHoldings is returned for an empty holdings list.
var ErrNoHoldings = errors.New("no holdings given")

// Holding is a position of whole or fractional shares.
type Holding struct {
	Symbol string  `json:"symbol"`
	Shares float64 `json:"shares"`
}

// DefaultHoldings is the demo portfolio used when none is supplied.
var DefaultHoldings = []Holding{
	{Symbol: "VOO", Shares: 25},
	{Symbol: "QQQ", Shares: 15},
	{Symbol: "SCHD", Shares: 40},
	{Symbol: "VTI", Shares: 30},
	{Symbol: "VGT", Shares: 10},
}

// HoldingValue is one priced position.
type HoldingValue struct {
	Symbol        string  `json:"symbol"`
	Shares        float64 `json:"shares"`
	Price         float64 `json:"price"`
	Value         float64 `json:"value"`
	ChangePercent float64 `json:"changePercent"`
}

// Performer names the best performing holding.
type Performer struct {
	Symbol        string  `json:"symbol"`
	ChangePercent float64 `json:"changePercent"`
}

// PortfolioView summarizes a set of holdings priced from the quote cache.
type PortfolioView struct {
	PortfolioValue     float64            `json:"portfolioValue"`
	TodayChange        float64            `json:"todayChange"`
	TodayChangePercent float64            `json:"todayChangePercent"`
	TopPerformer       *Performer         `json:"topPerformer,omitempty"`
	Holdings           []HoldingValue     `json:"holdings"`
	Missing            []string           `json:"missing"`
	Cache              models.CacheStatus `json:"cache"`
}

// ParseHoldings reads "VOO:25,QQQ:15". A symbol without a share count holds one share.
func ParseHoldings(s string) ([]Holding, error) {
	var out []Holding
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		symbol, sharesText, hasShares := strings.Cut(part, ":")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			return nil, fmt.Errorf("missing symbol in %q", part)
		}
		shares := 1.0
		if hasShares {
			v, err := strconv.ParseFloat(strings.TrimSpace(sharesText), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
				return nil, fmt.Errorf("invalid share count in %q", part)
			}
			shares = v
		}
		out = append(out, Holding{Symbol: symbol, Shares: shares})
	}
	return out, nil
}

func holdingKeys(holdings []Holding) []string {
	keys := make([]string, len(holdings))
	for i, h := range holdings {
		keys[i] = h.Symbol + ":" + strconv.FormatFloat(h.Shares, 'f', -1, 64)
	}
	return keys
}

// GetPortfolio prices holdings through GetQuote and caches the summary
// under the holdings set. Holdings without a quote are listed in Missing.
func (s *Service) GetPortfolio(ctx context.Context, holdings []Holding) (*PortfolioView, error) {
	if len(holdings) == 0 {
		return nil, ErrNoHoldings
	}
	keys := holdingKeys(holdings)

	entry, err := s.storage.PortfolioCache().Get(ctx, keys)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read portfolio cache")
	}
	if entry != nil && !entry.IsExpired(s.now()) {
		if view, err := decodePortfolio(entry.Payload.Data); err == nil {
			view.Cache = entry.Status(s.now())
			return view, nil
		}
	}

	view := &PortfolioView{Holdings: []HoldingValue{}, Missing: []string{}}
	var previousValue float64
	for _, h := range holdings {
		q, err := s.GetQuote(ctx, h.Symbol)
		if err != nil {
			view.Missing = append(view.Missing, h.Symbol)
			continue
		}
		price := q.Quote.Midpoint
		prev := price
		if q.Quote.PreviousClose != nil && *q.Quote.PreviousClose > 0 {
			prev = *q.Quote.PreviousClose
		}
		pct := 0.0
		if prev > 0 {
			pct = (price - prev) / prev * 100
		}

		view.PortfolioValue += price * h.Shares
		previousValue += prev * h.Shares
		view.Holdings = append(view.Holdings, HoldingValue{
			Symbol:        h.Symbol,
			Shares:        h.Shares,
			Price:         models.Round2(price),
			Value:         models.Round2(price * h.Shares),
			ChangePercent: models.Round2(pct),
		})
		if view.TopPerformer == nil || pct > view.TopPerformer.ChangePercent {
			view.TopPerformer = &Performer{Symbol: h.Symbol, ChangePercent: pct}
		}
	}

	view.TodayChange = view.PortfolioValue - previousValue
	if previousValue > 0 {
		view.TodayChangePercent = models.Round2(view.TodayChange / previousValue * 100)
	}
	view.PortfolioValue = models.Round2(view.PortfolioValue)
	view.TodayChange = models.Round2(view.TodayChange)
	if view.TopPerformer != nil {
		view.TopPerformer.ChangePercent = models.Round2(view.TopPerformer.ChangePercent)
	}
	view.Cache = CacheRefreshed

	if len(view.Missing) == 0 {
		data, err := encodePortfolio(view)
		if err == nil {
			err = s.storage.PortfolioCache().Set(ctx, keys, data, s.portfolioTTL)
		}
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache portfolio summary")
		}
	}
	return view, nil
}

// encodePortfolio flattens the view into the generic payload the cache stores.
func encodePortfolio(view *PortfolioView) (map[string]any, error) {
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func decodePortfolio(data map[string]any) (*PortfolioView, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var view PortfolioView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, err
	}
	return &view, nil
}
