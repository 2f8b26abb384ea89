package models

import "time"

// RunStatus is the outcome of one orchestrator invocation.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// FetchRunLog is the append-only audit record written once per run.
type FetchRunLog struct {
	ID           string    `json:"id"`
	Tier         string    `json:"tier"`
	Symbols      []string  `json:"symbols"`
	Status       RunStatus `json:"status"`
	FetchCount   int       `json:"fetchCount"`
	FailedCount  int       `json:"failedCount"`
	DurationMS   int64     `json:"durationMs"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
}

// Lease is a time-bounded claim on a tier, preventing overlapping runs.
type Lease struct {
	Tier       string    `json:"tier"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
