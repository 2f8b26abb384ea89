package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/common"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/fetcher"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)

	// Triggers
	mux.HandleFunc("/api/cron/fetch-data", s.tierTrigger("realtime", nil))
	mux.HandleFunc("/api/cron/quotes", s.tierTrigger("top", nil))
	mux.HandleFunc("/api/cron/quotes-all", s.tierTrigger("all", nil))
	mux.HandleFunc("/api/cron/historical", s.tierTrigger("all", []string{fetcher.CollectionHistorical}))
	mux.HandleFunc("/api/cron/run/", s.handleRunTier)
	mux.HandleFunc("/api/cron/runs", s.handleRunList)
	mux.HandleFunc("/api/cron/test-auth", s.handleTestAuth)

	// Read path
	mux.HandleFunc("/api/etf/list", s.handleListETFs)
	mux.HandleFunc("/api/etf/top-picks", s.handleTopPicks)
	mux.HandleFunc("/api/etf/portfolio", s.handlePortfolio)
	mux.HandleFunc("/api/etf/", s.routeETF)

	// Analysis
	mux.HandleFunc("/api/analysis/score", s.handleAnalysisScore)
	mux.HandleFunc("/api/analysis/explain", s.handleAnalysisExplain)
	mux.HandleFunc("/api/analysis/sentiment", s.handleAnalysisSentiment)
	mux.HandleFunc("/api/analysis/batch", s.handleAnalysisBatch)
	mux.HandleFunc("/api/analysis/stats", s.handleAnalysisStats)

	// Cache and market
	mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/api/cache/cleanup", s.handleCacheCleanup)
	mux.HandleFunc("/api/market/status", s.handleMarketStatus)
}

// reservedETFPaths are collection routes under /api/etf/, never symbols.
var reservedETFPaths = map[string]bool{"list": true, "top-picks": true, "portfolio": true}

// routeETF dispatches /api/etf/{symbol}/{quote,history,details}.
func (s *Server) routeETF(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/etf/"), "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	if reservedETFPaths[parts[0]] {
		WriteError(w, http.StatusNotFound, "Not found")
		return
	}
	symbol := strings.ToUpper(parts[0])

	switch parts[1] {
	case "quote":
		s.handleQuote(w, r, symbol)
	case "history":
		s.handleHistory(w, r, symbol)
	case "details":
		s.handleDetails(w, r, symbol)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// handleHealth reports liveness plus which optional dependencies are wired.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptime":       time.Since(s.app.StartupTime).Round(time.Second).String(),
		"market_data":  s.app.MarketClient != nil,
		"ai_providers": s.app.Analysis.Stats().AvailableProviders,
		"scheduler":    s.app.Config.Scheduler.Enabled,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// handleShutdown handles POST /api/shutdown. Outside production a trigger
// credential may stop the process; main owns the actual shutdown.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}
	if !s.requireTrigger(w, r) {
		return
	}
	if s.shutdownChan == nil {
		WriteError(w, http.StatusServiceUnavailable, "Shutdown not wired")
		return
	}

	s.logger.Info().Str("correlation_id", correlationID(r.Context())).Msg("Shutdown requested via HTTP endpoint")
	select {
	case s.shutdownChan <- struct{}{}:
	default: // already requested
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
}
