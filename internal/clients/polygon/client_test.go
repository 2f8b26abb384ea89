package polygon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

type recordedSleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...ClientOption) (*Client, *recordedSleeps) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	sleeps := &recordedSleeps{}
	base := []ClientOption{WithBaseURL(srv.URL), WithRateLimit(0), WithSleep(sleeps.sleep)}
	return NewClient("test-key", append(base, opts...)...), sleeps
}

func TestGetAggregates_ParsesBars(t *testing.T) {
	var gotPath, gotQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"ticker":"VOO","results":[
			{"o":1,"h":2,"l":0.5,"c":1.5,"v":100,"t":1735689600000},
			{"o":1.5,"h":2.5,"l":1,"c":2,"v":200,"t":1735776000000}]}`)
	})

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := client.GetAggregates(context.Background(), "voo", models.GranularityDay, start, start.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.Equal(t, "/aggs/ticker/VOO/range/1/day/2025-01-01/2025-01-03", gotPath)
	assert.Contains(t, gotQuery, "apiKey=test-key")
	assert.Contains(t, gotQuery, "sort=asc")
	assert.Contains(t, gotQuery, "limit=50000")
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1735689600000), bars[0].Timestamp)
	assert.Equal(t, 2.0, bars[1].Close)
}

func TestGetAggregates_MissingResultsIsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ticker":"VOO","resultsCount":0}`)
	})

	bars, err := client.GetAggregates(context.Background(), "VOO", models.GranularityDay, time.Now(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, bars)
	assert.Empty(t, bars)
}

func TestGetAggregates_NonOKIsError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"NOT_AUTHORIZED"}`)
	})

	_, err := client.GetAggregates(context.Background(), "VOO", models.GranularityDay, time.Now(), time.Now())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestRetry_429UsesRetryAfterHint(t *testing.T) {
	var calls int32
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			if n == 1 {
				w.Header().Set("Retry-After", "7")
			}
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"results":{"last":{"bid":99.5,"ask":100.5,"t":1}}}`)
	})

	q, err := client.GetLatestQuote(context.Background(), "VOO")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 99.5, q.Bid)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	// 2^0 + 7s hint, then 2^1 + default 5s hint
	assert.Equal(t, []time.Duration{8 * time.Second, 7 * time.Second}, sleeps.waits)
}

func TestRetry_CeilingReturnsLastResult(t *testing.T) {
	var calls int32
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetAggregates(context.Background(), "VOO", models.GranularityDay, time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(DefaultMaxRetries+1), atomic.LoadInt32(&calls))
	assert.Len(t, sleeps.waits, DefaultMaxRetries)
}

func TestRetry_ServerErrorBacksOffWithoutHint(t *testing.T) {
	var calls int32
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ticker":"QQQ","results":[{"o":1,"h":1,"l":1,"c":480.25,"v":1,"t":1735689600000}]}`)
	})

	prev, err := client.GetPreviousClose(context.Background(), "QQQ")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, 480.25, prev.Close)
	assert.Equal(t, "QQQ", prev.Symbol)
	assert.Equal(t, prev.From.Add(24*time.Hour), prev.To)
	assert.Equal(t, []time.Duration{time.Second}, sleeps.waits)
}

func TestRetry_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	client, sleeps := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetAggregates(context.Background(), "NOPE", models.GranularityDay, time.Now(), time.Now())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeps.waits)
}

func TestAbsentResults(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"not found", http.StatusNotFound, `{}`},
		{"rate limited past ceiling", http.StatusTooManyRequests, ``},
		{"empty payload", http.StatusOK, `{"status":"OK"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, WithMaxRetries(1))

			ctx := context.Background()
			q, err := client.GetLatestQuote(ctx, "VOO")
			assert.NoError(t, err)
			assert.Nil(t, q)

			p, err := client.GetPreviousClose(ctx, "VOO")
			assert.NoError(t, err)
			assert.Nil(t, p)

			d, err := client.GetTickerDetails(ctx, "VOO")
			assert.NoError(t, err)
			assert.Nil(t, d)
		})
	}
}

func TestGetTickerDetails_Parses(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reference/tickers/SCHD", r.URL.Path)
		fmt.Fprint(w, `{"results":{"ticker":"SCHD","name":"Schwab US Dividend Equity ETF","market":"stocks","locale":"us","type":"ETF","currency_name":"usd"}}`)
	})

	d, err := client.GetTickerDetails(context.Background(), "schd")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "SCHD", d.Symbol)
	assert.Equal(t, "ETF", d.Type)
}

func TestGetTickerDetails_UsesV3Root(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasPrefix(r.URL.Path, "/v3/") {
			fmt.Fprint(w, `{"results":{"ticker":"VOO","name":"Vanguard S&P 500 ETF","type":"ETF"}}`)
			return
		}
		fmt.Fprint(w, `{"status":"OK","results":[{"c":500,"o":498,"h":502,"l":497,"v":10,"t":1735689600000}]}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient("test-key", WithBaseURL(srv.URL+"/v2/"), WithRateLimit(0))
	d, err := client.GetTickerDetails(context.Background(), "voo")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "VOO", d.Symbol)

	_, err = client.GetPreviousClose(context.Background(), "VOO")
	require.NoError(t, err)

	assert.Equal(t, []string{"/v3/reference/tickers/VOO", "/v2/aggs/ticker/VOO/prev"}, paths)
}

func TestGetTickerDetails_ExplicitReferenceURL(t *testing.T) {
	client := NewClient("k", WithBaseURL("https://example.test/v2"), WithReferenceURL("https://ref.test/v3/"))
	assert.Equal(t, "https://ref.test/v3", client.refURL)

	client = NewClient("k")
	assert.Equal(t, "https://api.polygon.io/v3", client.refURL)
}

func TestCancelledContextStopsRetries(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithSleep(sleepCtx))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetAggregates(ctx, "VOO", models.GranularityDay, time.Now(), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryAfterParsing(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, defaultRetryAfter, retryAfter(""))
	assert.Equal(t, defaultRetryAfter, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
