// Package interfaces defines service contracts for ETF Compass
package interfaces

import (
	"context"
	"time"

	"github.com/bdtoconnect-creator/etf-compass/internal/models"
)

// MarketDataClient provides access to the upstream market data API.
// Quote, previous close and ticker details return nil with no error when
// the upstream has nothing for the symbol.
type MarketDataClient interface {
	// GetAggregates retrieves OHLCV bars in ascending order
	GetAggregates(ctx context.Context, symbol string, granularity models.Granularity, start, end time.Time) ([]models.Bar, error)

	// GetLatestQuote retrieves the latest NBBO
	GetLatestQuote(ctx context.Context, symbol string) (*models.NBBO, error)

	// GetPreviousClose retrieves the prior session's daily bar
	GetPreviousClose(ctx context.Context, symbol string) (*models.PreviousClose, error)

	// GetTickerDetails retrieves reference metadata
	GetTickerDetails(ctx context.Context, symbol string) (*models.TickerDetails, error)
}

// CompletionClient sends one prompt to a language model and returns its text.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Ping(ctx context.Context) error
}

// CompletionRequest is a single-turn prompt.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	JSON        bool // ask the model for a JSON object reply where supported
}
