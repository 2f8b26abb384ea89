// Package markethours answers whether the US equity session is open
package markethours

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
)

const (
	DefaultTimezone  = "America/New_York"
	DefaultOpenHour  = 8
	DefaultCloseHour = 18

	dateLayout = "2006-01-02"
	lookahead  = 7
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Fallback to EST fixed zone if tzdata is unavailable (e.g., minimal container)
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// Gate evaluates the trading session against an injectable clock.
// It holds no mutable state.
type Gate struct {
	loc       *time.Location
	openHour  int
	closeHour int
	holidays  map[string]bool
	now       func() time.Time
}

// Option configures a Gate
type Option func(*Gate)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// NewGate builds a gate from the [market] config section
func NewGate(cfg common.MarketConfig, opts ...Option) *Gate {
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	g := &Gate{
		loc:       mustLoadLocation(tz),
		openHour:  cfg.OpenHour,
		closeHour: cfg.CloseHour,
		holidays:  make(map[string]bool, len(cfg.Holidays)),
		now:       time.Now,
	}
	if g.openHour <= 0 && g.closeHour <= 0 {
		g.openHour, g.closeHour = DefaultOpenHour, DefaultCloseHour
	}
	for _, h := range cfg.Holidays {
		g.holidays[strings.TrimSpace(h)] = true
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Location returns the exchange timezone
func (g *Gate) Location() *time.Location {
	return g.loc
}

// IsOpen reports whether the session is open now
func (g *Gate) IsOpen() bool {
	return g.IsOpenAt(g.now())
}

// IsOpenAt reports whether the session is open at t
func (g *Gate) IsOpenAt(t time.Time) bool {
	local := t.In(g.loc)
	if !g.isTradingDay(local) {
		return false
	}
	h := local.Hour()
	return h >= g.openHour && h < g.closeHour
}

// IsHoliday reports whether t falls on a configured holiday in the exchange zone
func (g *Gate) IsHoliday(t time.Time) bool {
	return g.holidays[t.In(g.loc).Format(dateLayout)]
}

func (g *Gate) isTradingDay(local time.Time) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !g.IsHoliday(local)
}

// NextOpen returns the next session open after now. Today's open counts when
// it is still ahead. Gives up after a week and returns now + 7 days.
func (g *Gate) NextOpen() time.Time {
	now := g.now().In(g.loc)

	today := time.Date(now.Year(), now.Month(), now.Day(), g.openHour, 0, 0, 0, g.loc)
	if g.isTradingDay(today) && now.Before(today) {
		return today
	}

	candidate := today.AddDate(0, 0, 1)
	for i := 0; i < lookahead; i++ {
		if g.isTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return now.AddDate(0, 0, lookahead)
}

// NextClose returns today's close, or tomorrow's once today's has passed
func (g *Gate) NextClose() time.Time {
	now := g.now().In(g.loc)
	closeAt := time.Date(now.Year(), now.Month(), now.Day(), g.closeHour, 0, 0, 0, g.loc)
	if now.Hour() >= g.closeHour {
		closeAt = closeAt.AddDate(0, 0, 1)
	}
	return closeAt
}

// StatusMessage is a short human readable session state
func (g *Gate) StatusMessage() string {
	if g.IsOpen() {
		return "Market is open"
	}

	hours := g.NextOpen().Sub(g.now()).Hours()
	if hours < 24 {
		return fmt.Sprintf("Market closed, opens in %dh", int(math.Ceil(hours)))
	}
	return fmt.Sprintf("Market closed, opens in %dd", int(math.Ceil(hours/24)))
}

// Status is the gate state exposed over HTTP
type Status struct {
	Open      bool      `json:"open"`
	Holiday   bool      `json:"holiday"`
	Message   string    `json:"message"`
	NextOpen  time.Time `json:"nextOpen"`
	NextClose time.Time `json:"nextClose"`
	Timezone  string    `json:"timezone"`
}

// Status snapshots the gate at now
func (g *Gate) Status() Status {
	return Status{
		Open:      g.IsOpen(),
		Holiday:   g.IsHoliday(g.now()),
		Message:   g.StatusMessage(),
		NextOpen:  g.NextOpen(),
		NextClose: g.NextClose(),
		Timezone:  g.loc.String(),
	}
}
