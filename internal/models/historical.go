package models

import (
	"sort"
	"strings"
	"time"
)

// Granularity is the bar timespan of a historical series.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityWeek   Granularity = "week"
	GranularityMonth  Granularity = "month"
)

// ParseGranularity maps a query value to a Granularity, defaulting to day.
func ParseGranularity(s string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case GranularityMinute:
		return GranularityMinute
	case GranularityHour:
		return GranularityHour
	case GranularityWeek:
		return GranularityWeek
	case GranularityMonth:
		return GranularityMonth
	default:
		return GranularityDay
	}
}

// Bar is one OHLCV aggregate. Timestamp is the bar start in Unix milliseconds.
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Time returns the bar start as a UTC time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// HistoricalSeries is the cached bar sequence for one symbol and granularity.
// Bars are ascending by timestamp with no gap filling.
type HistoricalSeries struct {
	Symbol      string      `json:"symbol"`
	Granularity Granularity `json:"granularity"`
	Bars        []Bar       `json:"bars"`
	WindowStart time.Time   `json:"windowStart"`
	WindowEnd   time.Time   `json:"windowEnd"`
}

// HistoricalKey is the cache key for a symbol+granularity pair.
func HistoricalKey(symbol string, granularity Granularity) string {
	return strings.ToUpper(symbol) + "_" + string(granularity)
}

// NewHistoricalSeries builds a series from a freshly fetched window. Bars are
// copied, sorted and reduced to one bar per timestamp.
func NewHistoricalSeries(symbol string, granularity Granularity, bars []Bar, windowStart, windowEnd time.Time) HistoricalSeries {
	return HistoricalSeries{
		Symbol:      strings.ToUpper(symbol),
		Granularity: granularity,
		Bars:        normalizeBars(bars),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}
}

// Append returns a new series holding every existing bar followed by the
// incoming bars strictly newer than the current last bar. Existing bars are
// never altered or removed, so the receiver's Bars is always a prefix of the
// result. WindowEnd only moves forward.
func (s HistoricalSeries) Append(bars []Bar, windowEnd time.Time) HistoricalSeries {
	out := s
	out.Bars = make([]Bar, len(s.Bars), len(s.Bars)+len(bars))
	copy(out.Bars, s.Bars)

	incoming := normalizeBars(bars)
	for _, b := range incoming {
		if len(out.Bars) > 0 && b.Timestamp <= out.Bars[len(out.Bars)-1].Timestamp {
			continue
		}
		out.Bars = append(out.Bars, b)
	}

	if windowEnd.After(out.WindowEnd) {
		out.WindowEnd = windowEnd
	}
	return out
}

// Closes returns the close prices in order.
func (s HistoricalSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close
	}
	return closes
}

// LastCloses returns at most n of the most recent closes, oldest first.
func (s HistoricalSeries) LastCloses(n int) []float64 {
	closes := s.Closes()
	if n >= 0 && len(closes) > n {
		closes = closes[len(closes)-n:]
	}
	return closes
}

func normalizeBars(bars []Bar) []Bar {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	out := sorted[:0]
	for _, b := range sorted {
		if len(out) > 0 && b.Timestamp == out[len(out)-1].Timestamp {
			continue
		}
		out = append(out, b)
	}
	return out
}
