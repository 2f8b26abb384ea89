package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/fetcher"
)

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 100
)

// tierTrigger returns a handler running tier, optionally restricted to collections.
func (s *Server) tierTrigger(tier string, collections []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.runTier(w, r, tier, collections)
	}
}

// handleRunTier handles GET/POST /api/cron/run/{tier}.
func (s *Server) handleRunTier(w http.ResponseWriter, r *http.Request) {
	tier := PathParam(r, "/api/cron/run/", "")
	if tier == "" {
		WriteError(w, http.StatusNotFound, "tier is required")
		return
	}
	s.runTier(w, r, tier, QueryList(r, "collections"))
}

// runTier executes a tier synchronously. The run is detached from the
// request context so a dropped connection does not abort it.
func (s *Server) runTier(w http.ResponseWriter, r *http.Request, tier string, collections []string) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if !s.requireTrigger(w, r) {
		return
	}
	if s.app.Fetcher == nil {
		WriteError(w, http.StatusServiceUnavailable, "market data client not configured")
		return
	}

	force := QueryBool(r, "force")
	opts := fetcher.RunOptions{Force: force, Collections: collections}

	s.logger.Info().
		Str("tier", tier).
		Bool("force", force).
		Str("collections", strings.Join(collections, ",")).
		Str("correlation_id", correlationID(r.Context())).
		Msg("Tier run triggered")

	summary, err := s.app.Fetcher.Run(context.WithoutCancel(r.Context()), tier, opts)
	if errors.Is(err, fetcher.ErrUnknownTier) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if summary == nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("tier", tier).Str("run_id", summary.RunID).Msg("Tier run reported an error")
	}

	status := http.StatusOK
	if summary.Status == models.RunFailed {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, summary)
}

// handleRunList handles GET /api/cron/runs?limit=N.
func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit, ok := QueryLimit(w, r, "limit", defaultRunListLimit, maxRunListLimit)
	if !ok {
		return
	}

	runs, err := s.app.Storage.RunLogStore().ListRecent(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []*models.FetchRunLog{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleTestAuth handles GET /api/cron/test-auth. It reports whether the
// presented credentials would be accepted by the trigger endpoints without
// running anything or revealing the configured secret.
func (s *Server) handleTestAuth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	err := checkTrigger(s.app.Config.Auth, r.Header.Get("Authorization"))
	body := map[string]any{
		"authorized": err == nil,
		"configured": !errors.Is(err, errNotConfigured),
	}
	if err != nil {
		body["reason"] = err.Error()
	}
	WriteJSON(w, http.StatusOK, body)
}
