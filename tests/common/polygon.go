package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// PolygonStub serves the subset of the Polygon v2 API the client calls.
// Every symbol quotes at Bid/Ask, closed yesterday at PrevClose and has
// Days daily bars ending today.
type PolygonStub struct {
	Server    *httptest.Server
	Bid       float64
	Ask       float64
	PrevClose float64
	Days      int

	mu    sync.Mutex
	calls map[string]int
}

// NewPolygonStub starts the stub and closes it with the test.
func NewPolygonStub(t *testing.T) *PolygonStub {
	t.Helper()
	s := &PolygonStub{Bid: 99, Ask: 101, PrevClose: 98, Days: 10, calls: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

// URL is the base URL to configure the client with.
func (s *PolygonStub) URL() string {
	return s.Server.URL
}

// Calls returns how many requests hit endpoints of kind "nbbo", "prev", "aggs" or "tickers".
func (s *PolygonStub) Calls(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

func (s *PolygonStub) record(kind string) {
	s.mu.Lock()
	s.calls[kind]++
	s.mu.Unlock()
}

func (s *PolygonStub) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("apiKey") == "" && r.Header.Get("Authorization") == "" {
		http.Error(w, `{"status":"ERROR","error":"missing key"}`, http.StatusUnauthorized)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "last" && parts[1] == "nbbo":
		s.record("nbbo")
		writeStub(w, map[string]any{
			"results": map[string]any{"last": map[string]any{"bid": s.Bid, "ask": s.Ask, "t": time.Now().UnixNano()}},
		})
	case len(parts) == 4 && parts[0] == "aggs" && parts[3] == "prev":
		s.record("prev")
		y := time.Now().UTC().AddDate(0, 0, -1).Truncate(24 * time.Hour)
		writeStub(w, map[string]any{
			"ticker":  parts[2],
			"results": []map[string]any{{"o": s.PrevClose, "h": s.PrevClose, "l": s.PrevClose, "c": s.PrevClose, "v": 1000, "t": y.UnixMilli()}},
		})
	case len(parts) >= 4 && parts[0] == "aggs" && parts[3] == "range":
		s.record("aggs")
		writeStub(w, map[string]any{"ticker": parts[2], "results": s.bars()})
	case len(parts) == 3 && parts[0] == "reference" && parts[1] == "tickers":
		s.record("tickers")
		writeStub(w, map[string]any{"results": map[string]any{"ticker": parts[2], "name": parts[2] + " Fund", "type": "ETF"}})
	default:
		http.NotFound(w, r)
	}
}

// bars returns Days rising daily closes ending today.
func (s *PolygonStub) bars() []map[string]any {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	out := make([]map[string]any, 0, s.Days)
	for i := 0; i < s.Days; i++ {
		c := s.PrevClose - float64(s.Days-1-i)
		ts := today.AddDate(0, 0, i-s.Days+1)
		out = append(out, map[string]any{"o": c, "h": c + 1, "l": c - 1, "c": c, "v": 1000, "t": ts.UnixMilli()})
	}
	return out
}

func writeStub(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}
