package analysis

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

const defaultScore = 50

// rawScore is the loosely typed shape providers reply with.
type rawScore struct {
	Score      any   `json:"score"`
	Signal     any   `json:"signal"`
	Confidence any   `json:"confidence"`
	RiskLevel  any   `json:"riskLevel"`
	Factors    []any `json:"factors"`
}

type rawSentiment struct {
	Sentiment  any   `json:"sentiment"`
	Confidence any   `json:"confidence"`
	Reasons    []any `json:"reasons"`
	Timeframe  any   `json:"timeframe"`
}

// extractJSON returns the outermost {...} of a reply, repaired into valid JSON.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	candidate := text[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate, true
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", false
	}
	return repaired, true
}

// ValidateScoreReply decodes a score reply and normalizes every field.
func ValidateScoreReply(symbol, text string, now time.Time) (*models.AnalysisResult, bool) {
	body, ok := extractJSON(text)
	if !ok {
		return nil, false
	}
	var raw rawScore
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, false
	}
	return &models.AnalysisResult{
		Symbol:     strings.ToUpper(symbol),
		Score:      validateScore(raw.Score),
		Confidence: validateLevel(raw.Confidence),
		Signal:     validateSignal(raw.Signal),
		RiskLevel:  validateLevel(raw.RiskLevel),
		Factors:    stringsOf(raw.Factors),
		AnalyzedAt: now,
	}, true
}

// ValidateSentimentReply decodes a sentiment reply and normalizes every field.
func ValidateSentimentReply(text string) (*models.Sentiment, bool) {
	body, ok := extractJSON(text)
	if !ok {
		return nil, false
	}
	var raw rawSentiment
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, false
	}
	return &models.Sentiment{
		Sentiment:  validateSentimentLabel(raw.Sentiment),
		Confidence: validateConfidence(raw.Confidence),
		Reasons:    stringsOf(raw.Reasons),
		Timeframe:  validateTimeframe(raw.Timeframe),
	}, true
}

// number reads a JSON number or a numeric string.
func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func validateScore(v any) int {
	f, ok := number(v)
	if !ok {
		return defaultScore
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

func validateConfidence(v any) float64 {
	f, ok := number(v)
	if !ok {
		return 0.5
	}
	return math.Max(0, math.Min(1, f))
}

func enumOf(v any) string {
	s, _ := v.(string)
	return strings.ToLower(strings.TrimSpace(s))
}

func validateLevel(v any) models.Level {
	switch l := models.Level(enumOf(v)); l {
	case models.LevelLow, models.LevelMedium, models.LevelHigh:
		return l
	default:
		return models.LevelMedium
	}
}

func validateSignal(v any) models.Signal {
	switch s := models.Signal(enumOf(v)); s {
	case models.SignalBuy, models.SignalHold, models.SignalSell:
		return s
	default:
		return models.SignalHold
	}
}

func validateSentimentLabel(v any) models.SentimentLabel {
	switch s := models.SentimentLabel(enumOf(v)); s {
	case models.SentimentBullish, models.SentimentBearish, models.SentimentNeutral:
		return s
	default:
		return models.SentimentNeutral
	}
}

func validateTimeframe(v any) models.Timeframe {
	switch t := models.Timeframe(enumOf(v)); t {
	case models.TimeframeShort, models.TimeframeMedium, models.TimeframeLong:
		return t
	default:
		return models.TimeframeMedium
	}
}

func stringsOf(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// normalizeResult clamps a provider's score and replaces unknown enums with
// their defaults, whatever provider produced it.
func normalizeResult(r *models.AnalysisResult) {
	r.Score = int(math.Max(0, math.Min(100, float64(r.Score))))
	r.Signal = validateSignal(string(r.Signal))
	r.Confidence = validateLevel(string(r.Confidence))
	r.RiskLevel = validateLevel(string(r.RiskLevel))
	r.Symbol = strings.ToUpper(r.Symbol)
}

// normalizeSentiment does the same for a sentiment reading.
func normalizeSentiment(s *models.Sentiment) {
	s.Sentiment = validateSentimentLabel(string(s.Sentiment))
	s.Timeframe = validateTimeframe(string(s.Timeframe))
	if math.IsNaN(s.Confidence) {
		s.Confidence = 0.5
	}
	s.Confidence = math.Max(0, math.Min(1, s.Confidence))
}
