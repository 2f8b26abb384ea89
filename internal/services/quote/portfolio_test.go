package quote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHoldings(t *testing.T) {
	holdings, err := ParseHoldings(" voo:25, QQQ:1.5 ,, SCHD")
	require.NoError(t, err)
	assert.Equal(t, []Holding{{"VOO", 25}, {"QQQ", 1.5}, {"SCHD", 1}}, holdings)

	_, err = ParseHoldings("VOO:abc")
	assert.Error(t, err)
	_, err = ParseHoldings("VOO:-2")
	assert.Error(t, err)

	for _, bad := range []string{"VOO:NaN", "VOO:Inf", "VOO:-Inf", ":5", " :", "VOO:10,:3"} {
		_, err = ParseHoldings(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetPortfolio(t *testing.T) {
	svc, store, _ := setup(t, nil)
	cacheQuote(t, store, "VOO", 510, 500, 30*time.Minute)
	cacheQuote(t, store, "QQQ", 441, 450, 30*time.Minute)

	view, err := svc.GetPortfolio(context.Background(), []Holding{{"VOO", 10}, {"QQQ", 10}, {"VGT", 5}})
	require.NoError(t, err)

	assert.Equal(t, 9510.0, view.PortfolioValue)
	assert.Equal(t, 10.0, view.TodayChange)
	assert.Equal(t, 0.11, view.TodayChangePercent)
	require.NotNil(t, view.TopPerformer)
	assert.Equal(t, "VOO", view.TopPerformer.Symbol)
	assert.Equal(t, 2.0, view.TopPerformer.ChangePercent)
	assert.Equal(t, []string{"VGT"}, view.Missing)
	require.Len(t, view.Holdings, 2)
	assert.Equal(t, -2.0, view.Holdings[1].ChangePercent)

	// incomplete summaries are not cached
	entry, err := store.PortfolioCache().Get(context.Background(), holdingKeys([]Holding{{"VOO", 10}, {"QQQ", 10}, {"VGT", 5}}))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestGetPortfolio_ServesCachedSummary(t *testing.T) {
	svc, store, clk := setup(t, nil)
	cacheQuote(t, store, "VOO", 510, 500, 30*time.Minute)
	holdings := []Holding{{"VOO", 2}}

	first, err := svc.GetPortfolio(context.Background(), holdings)
	require.NoError(t, err)
	assert.Equal(t, CacheRefreshed, first.Cache)

	// a later quote change is not visible until the summary expires
	cacheQuote(t, store, "VOO", 600, 500, 30*time.Minute)
	clk.advance(time.Minute)

	second, err := svc.GetPortfolio(context.Background(), holdings)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(second.Cache))
	assert.Equal(t, 1020.0, second.PortfolioValue)
	assert.Equal(t, first.Holdings, second.Holdings)

	_, err = svc.GetPortfolio(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoHoldings)
}
