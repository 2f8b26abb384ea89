package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
	"github.com/bdtoconnect-creator/etf-compass/internal/services/analysis"
)

// writeAnalysisError maps analysis failures to HTTP statuses.
func writeAnalysisError(w http.ResponseWriter, err error) {
	if errors.Is(err, analysis.ErrNotInitialized) {
		WriteError(w, http.StatusServiceUnavailable, "AI analysis unavailable: no provider configured")
		return
	}
	code, ok := analysis.ErrorCodeOf(err)
	if !ok {
		WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	status := http.StatusBadGateway
	switch code {
	case analysis.CodeRateLimit:
		status = http.StatusTooManyRequests
	case analysis.CodeTimeout:
		status = http.StatusGatewayTimeout
	case analysis.CodeNoProvider:
		status = http.StatusServiceUnavailable
	case analysis.CodeNotSupported:
		status = http.StatusNotImplemented
	}
	WriteErrorWithCode(w, status, err.Error(), string(code))
}

func requireSymbol(w http.ResponseWriter, symbol string) (string, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return "", false
	}
	return symbol, true
}

// handleAnalysisScore handles POST /api/analysis/score.
func (s *Server) handleAnalysisScore(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Symbol string            `json:"symbol"`
		Data   models.MarketData `json:"data"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	symbol, ok := requireSymbol(w, req.Symbol)
	if !ok {
		return
	}
	if req.Data.Symbol == "" {
		req.Data.Symbol = symbol
	}

	result, err := s.app.Analysis.GenerateScore(r.Context(), symbol, req.Data)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleAnalysisExplain handles POST /api/analysis/explain.
func (s *Server) handleAnalysisExplain(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Symbol   string                `json:"symbol"`
		Analysis models.AnalysisResult `json:"analysis"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	symbol, ok := requireSymbol(w, req.Symbol)
	if !ok {
		return
	}

	text, err := s.app.Analysis.GenerateExplanation(r.Context(), symbol, req.Analysis)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "explanation": text})
}

// handleAnalysisSentiment handles POST /api/analysis/sentiment.
func (s *Server) handleAnalysisSentiment(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Symbol  string `json:"symbol"`
		Context string `json:"context"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	symbol, ok := requireSymbol(w, req.Symbol)
	if !ok {
		return
	}

	sentiment, err := s.app.Analysis.GenerateSentiment(r.Context(), symbol, req.Context)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sentiment)
}

// handleAnalysisBatch handles POST /api/analysis/batch.
func (s *Server) handleAnalysisBatch(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Items []analysis.BatchItem `json:"items"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		WriteError(w, http.StatusBadRequest, "items is required")
		return
	}

	results, err := s.app.Analysis.BatchAnalyze(r.Context(), req.Items)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

// handleAnalysisStats handles GET /api/analysis/stats.
func (s *Server) handleAnalysisStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.app.Analysis.Stats())
}
