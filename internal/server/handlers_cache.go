package server

import (
	"net/http"
)

// handleCacheStats handles GET /api/cache/stats.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	stats, err := s.app.Storage.CacheStats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to read cache stats: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// handleCacheCleanup handles POST /api/cache/cleanup.
func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !s.requireTrigger(w, r) {
		return
	}
	result, err := s.app.Storage.CleanupExpired(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Cleanup failed: "+err.Error())
		return
	}
	s.logger.Info().Int("deleted", result.Total()).Msg("Expired cache entries removed")
	WriteJSON(w, http.StatusOK, map[string]any{"deleted": result, "total": result.Total()})
}

// handleMarketStatus handles GET /api/market/status.
func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.app.Gate.Status())
}
