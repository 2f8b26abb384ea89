package models

import (
	"strings"
	"time"
)

// NBBO is the latest national best bid and offer for a symbol.
type NBBO struct {
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"` // nanoseconds since epoch, as reported upstream
}

// PreviousClose is the prior session's daily bar.
type PreviousClose struct {
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
}

// TickerDetails is reference metadata for a symbol.
type TickerDetails struct {
	Symbol       string  `json:"ticker"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Market       string  `json:"market"`
	Locale       string  `json:"locale"`
	Type         string  `json:"type"`
	CurrencyName string  `json:"currency_name"`
	MarketCap    float64 `json:"market_cap,omitempty"`
	HomepageURL  string  `json:"homepage_url,omitempty"`
	ListDate     string  `json:"list_date,omitempty"`
}

// QuoteRecord is the cached point quote. Derived fields are computed once at
// construction and never recomputed on read.
type QuoteRecord struct {
	Symbol        string   `json:"symbol"`
	Bid           float64  `json:"bid"`
	Ask           float64  `json:"ask"`
	Midpoint      float64  `json:"midpoint"`
	PreviousClose *float64 `json:"previousClose,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"changePercent,omitempty"`
}

// NewQuoteRecord derives midpoint, change and changePercent from a quote and
// an optional previous close. Change needs a previous close; the percentage
// additionally needs it to be positive.
func NewQuoteRecord(symbol string, quote NBBO, prev *PreviousClose) QuoteRecord {
	rec := QuoteRecord{
		Symbol:   strings.ToUpper(symbol),
		Bid:      quote.Bid,
		Ask:      quote.Ask,
		Midpoint: (quote.Bid + quote.Ask) / 2,
	}
	if prev == nil {
		return rec
	}

	prevClose := prev.Close
	change := rec.Midpoint - prevClose
	rec.PreviousClose = &prevClose
	rec.Change = &change
	if prevClose > 0 {
		pct := change / prevClose * 100
		rec.ChangePercent = &pct
	}
	return rec
}
