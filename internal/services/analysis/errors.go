package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bdtoconnect-creator/etf-compass/internal/clients/claude"
	"github.com/bdtoconnect-creator/etf-compass/internal/clients/openai"
)

// ErrorCode classifies an AIError.
type ErrorCode string

const (
	CodeNoContent         ErrorCode = "NO_CONTENT"
	CodeNoJSON            ErrorCode = "NO_JSON"
	CodeScoreFailed       ErrorCode = "SCORE_FAILED"
	CodeExplanationFailed ErrorCode = "EXPLANATION_FAILED"
	CodeSentimentFailed   ErrorCode = "SENTIMENT_FAILED"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeNoProvider        ErrorCode = "NO_PROVIDER"
	CodeNotSupported      ErrorCode = "NOT_SUPPORTED"
)

var (
	// ErrNoProvider means no provider passed its health check.
	ErrNoProvider = errors.New("no AI providers available")
	// ErrNotSupported is returned by providers for operations outside their capability set.
	ErrNotSupported = errors.New("operation not supported by provider")
	// ErrNotInitialized is returned when the manager is used before Init.
	ErrNotInitialized = errors.New("analysis manager not initialized")
)

// AIError is a provider failure with a stable code.
type AIError struct {
	Provider string
	Code     ErrorCode
	Message  string
	Err      error
}

func (e *AIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

func (e *AIError) Unwrap() error {
	return e.Err
}

// wrapError converts err into an AIError. Existing AIErrors pass through;
// upstream 429s and deadline errors get their own codes.
func wrapError(provider string, code ErrorCode, message string, err error) error {
	if err == nil {
		return nil
	}
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case statusOf(err) == http.StatusTooManyRequests:
		code = CodeRateLimit
	}
	return &AIError{Provider: provider, Code: code, Message: message, Err: err}
}

func statusOf(err error) int {
	var oe *openai.APIError
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	var ce *claude.APIError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}

// ErrorCodeOf returns the AIError code carried by err, if any.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Code, true
	}
	return "", false
}
