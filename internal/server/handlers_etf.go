package server

import (
	"errors"
	"net/http"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/quote"
)

// writeMissing writes the 404 body used by every read path.
func writeMissing(w http.ResponseWriter, symbol string, err error) {
	body := map[string]any{
		"error": err.Error(),
		"cache": models.CacheMissing,
	}
	if symbol != "" {
		body["symbol"] = symbol
	}
	WriteJSON(w, http.StatusNotFound, body)
}

// handleQuote handles GET /api/etf/{symbol}/quote.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	view, err := s.app.Quotes.GetQuote(r.Context(), symbol)
	if errors.Is(err, quote.ErrNotFound) {
		writeMissing(w, symbol, err)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// handleHistory handles GET /api/etf/{symbol}/history?granularity=day.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	granularity := models.ParseGranularity(r.URL.Query().Get("granularity"))
	view, err := s.app.Quotes.GetHistory(r.Context(), symbol, granularity)
	if errors.Is(err, quote.ErrNotFound) {
		writeMissing(w, symbol, err)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// handleDetails handles GET /api/etf/{symbol}/details.
func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	details, err := s.app.Quotes.GetDetails(r.Context(), symbol)
	switch {
	case errors.Is(err, quote.ErrNoClient):
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, quote.ErrNotFound):
		writeMissing(w, symbol, err)
	case err != nil:
		WriteError(w, http.StatusBadGateway, err.Error())
	default:
		WriteJSON(w, http.StatusOK, details)
	}
}

// handleListETFs handles GET /api/etf/list?tier=top50|all&search=&sector=.
func (s *Server) handleListETFs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	list, err := s.app.Quotes.ListETFs(r.Context(), quote.ListOptions{
		Tier:   q.Get("tier"),
		Search: q.Get("search"),
		Sector: q.Get("sector"),
	})
	if errors.Is(err, quote.ErrUnknownTier) {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// handleTopPicks handles GET /api/etf/top-picks.
func (s *Server) handleTopPicks(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	view, err := s.app.Quotes.GetTopPicks(r.Context())
	if errors.Is(err, quote.ErrNotFound) {
		writeMissing(w, "", err)
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// handlePortfolio handles GET /api/etf/portfolio?holdings=VOO:25,QQQ:15.
// Without holdings the demo portfolio is priced.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	holdings := quote.DefaultHoldings
	if raw := r.URL.Query().Get("holdings"); raw != "" {
		parsed, err := quote.ParseHoldings(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		holdings = parsed
	}

	view, err := s.app.Quotes.GetPortfolio(r.Context(), holdings)
	if errors.Is(err, quote.ErrNoHoldings) {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, view)
}
