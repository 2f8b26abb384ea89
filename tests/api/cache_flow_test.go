// Package api exercises the HTTP surface end to end: SurrealDB in a
// container, the Polygon client against a local stub, the fetcher and the
// read path wired by app.New.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdtoconnect-creator/etf-compass/internal/app"
	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/server"
	tcommon "github.com/bdtoconnect-creator/etf-compass/tests/common"
)

const cronSecret = "e2e-secret"

type env struct {
	ts   *httptest.Server
	stub *tcommon.PolygonStub
}

func newEnv(t *testing.T) *env {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)
	stub := tcommon.NewPolygonStub(t)

	cfg := common.NewDefaultConfig()
	cfg.Environment = "test"
	cfg.Storage = sc.StorageConfig(t)
	cfg.Clients.Polygon = common.PolygonConfig{APIKey: "stub", BaseURL: stub.URL(), Timeout: "5s"}
	cfg.Auth.CronSecret = cronSecret
	cfg.AI.EnableFake = true
	cfg.Fetch.CallDelay = "1ms"
	cfg.Fetch.BatchDelay = "1ms"
	cfg.Fetch.Tiers = []common.TierConfig{{
		Name:        "daily",
		Symbols:     []string{"VOO", "QQQ"},
		Cadence:     "daily",
		BatchSize:   2,
		Collections: []string{"quotes", "historical", "top_picks"},
	}}

	a, err := app.New(context.Background(), cfg, common.NewSilentLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ts := httptest.NewServer(server.NewServer(a).Handler())
	t.Cleanup(ts.Close)
	return &env{ts: ts, stub: stub}
}

func (e *env) call(t *testing.T, method, path string, authorized bool) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, nil)
	require.NoError(t, err)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+cronSecret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestCacheFlow_FirstThenIncremental(t *testing.T) {
	e := newEnv(t)

	status, body := e.call(t, http.MethodPost, "/api/cron/run/daily", true)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "first", body["mode"])
	assert.EqualValues(t, 2, body["fetchCount"])

	status, body = e.call(t, http.MethodGet, "/api/etf/VOO/quote", false)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "fresh", body["cache"])
	q := body["quote"].(map[string]any)
	assert.EqualValues(t, 100, q["midpoint"])
	assert.EqualValues(t, 2, q["change"])

	status, body = e.call(t, http.MethodGet, "/api/etf/QQQ/history?granularity=day", false)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "fresh", body["cache"])

	status, body = e.call(t, http.MethodGet, "/api/etf/top-picks", false)
	require.Equal(t, http.StatusOK, status, body)
	assert.NotEmpty(t, body["picks"])

	quotesBefore := e.stub.Calls("nbbo")
	status, body = e.call(t, http.MethodPost, "/api/cron/run/daily", true)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "incremental", body["mode"])
	assert.Equal(t, quotesBefore+2, e.stub.Calls("nbbo"))

	status, body = e.call(t, http.MethodGet, "/api/cron/runs", false)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["count"])
}

func TestCacheFlow_ReadPathRefetchesMissingQuote(t *testing.T) {
	e := newEnv(t)

	status, body := e.call(t, http.MethodGet, "/api/etf/SCHD/quote", false)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "refreshed", body["cache"])
	assert.Equal(t, 1, e.stub.Calls("nbbo"))

	status, body = e.call(t, http.MethodGet, "/api/etf/SCHD/quote", false)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "fresh", body["cache"])
	assert.Equal(t, 1, e.stub.Calls("nbbo"))
}

func TestCacheFlow_TriggerRequiresSecret(t *testing.T) {
	e := newEnv(t)

	status, _ := e.call(t, http.MethodPost, "/api/cron/run/daily", false)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, e.stub.Calls("nbbo"))
}
