package interfaces

import (
	"context"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// AnalysisProvider is one AI backend able to score, explain and read sentiment.
type AnalysisProvider interface {
	Name() string
	GenerateScore(ctx context.Context, symbol string, data models.MarketData) (*models.AnalysisResult, error)
	GenerateExplanation(ctx context.Context, symbol string, analysis models.AnalysisResult) (string, error)
	GenerateSentiment(ctx context.Context, symbol, marketContext string) (*models.Sentiment, error)
	HealthCheck(ctx context.Context) bool
}
