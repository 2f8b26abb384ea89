package models

import "github.com/shopspring/decimal"

// Signal is a buy/hold/sell recommendation.
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalHold Signal = "hold"
	SignalSell Signal = "sell"
)

// Level is a low/medium/high grade used for confidence and risk.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// SignalForScore maps a 0-100 score onto a signal: 85 and above is buy,
// 70 and above is hold, anything lower is sell.
func SignalForScore(score int) Signal {
	switch {
	case score >= 85:
		return SignalBuy
	case score >= 70:
		return SignalHold
	default:
		return SignalSell
	}
}

// TopPick is one row of the ranked snapshot.
type TopPick struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	AIScore       int       `json:"aiScore"`
	Signal        Signal    `json:"signal"`
	RiskLevel     Level     `json:"riskLevel"`
	WeeklyHistory []float64 `json:"weeklyHistory"`
	WeekChange    float64   `json:"weekChange"`
	Rank          int       `json:"rank"`
}

// Round2 rounds a money or percentage value to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
