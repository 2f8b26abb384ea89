package models

import "time"

// MarketData is the snapshot handed to an analysis provider.
type MarketData struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	CurrentPrice  float64   `json:"currentPrice"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        float64   `json:"volume"`
	HourlyPrices  []float64 `json:"hourlyPrices,omitempty"`
	RSI           *float64  `json:"rsi,omitempty"`
	SMA20         *float64  `json:"sma20,omitempty"`
	SMA50         *float64  `json:"sma50,omitempty"`
	Volatility    *float64  `json:"volatility,omitempty"`
}

// AnalysisResult is a validated score produced by one provider call.
type AnalysisResult struct {
	Symbol     string    `json:"symbol"`
	Score      int       `json:"score"`
	Confidence Level     `json:"confidence"`
	Signal     Signal    `json:"signal"`
	RiskLevel  Level     `json:"riskLevel"`
	Factors    []string  `json:"factors"`
	AnalyzedAt time.Time `json:"analyzedAt"`
	Provider   string    `json:"provider,omitempty"`
}

// SentimentLabel is bullish, bearish or neutral.
type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "bullish"
	SentimentBearish SentimentLabel = "bearish"
	SentimentNeutral SentimentLabel = "neutral"
)

// Timeframe is the horizon a sentiment applies to.
type Timeframe string

const (
	TimeframeShort  Timeframe = "short"
	TimeframeMedium Timeframe = "medium"
	TimeframeLong   Timeframe = "long"
)

// Sentiment is a provider's market sentiment read for a symbol.
type Sentiment struct {
	Sentiment  SentimentLabel `json:"sentiment"`
	Confidence float64        `json:"confidence"`
	Reasons    []string       `json:"reasons"`
	Timeframe  Timeframe      `json:"timeframe"`
}

// NeutralSentiment is returned when no sentiment provider is available.
func NeutralSentiment() Sentiment {
	return Sentiment{
		Sentiment:  SentimentNeutral,
		Confidence: 0.5,
		Reasons:    []string{"Sentiment analysis not available"},
		Timeframe:  TimeframeMedium,
	}
}
