package models

import (
	"sort"
	"strings"
)

// PortfolioSnapshot is a cached aggregate view over a set of symbols.
type PortfolioSnapshot struct {
	Symbols []string       `json:"symbols"`
	Data    map[string]any `json:"data"`
}

// PortfolioKey builds an order-independent cache key for a symbol set.
func PortfolioKey(symbols []string) string {
	return strings.Join(NormalizeSymbols(symbols), ",")
}

// NormalizeSymbols uppercases, trims, dedupes and sorts symbols.
func NormalizeSymbols(symbols []string) []string {
	norm := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		norm = append(norm, s)
	}
	sort.Strings(norm)
	return norm
}
