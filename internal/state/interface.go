package state

import (
	"context"
	"time"
)

// AppliedVersion is one record of the tracking type in the target database.
type AppliedVersion struct {
	Version   int64
	Name      string
	AppliedAt time.Time
}

// Execution statuses written to the history store.
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// ExecutionRecord is one attempted migration run, kept by a HistoryStore.
// The history is an audit trail; the tracking type in the target database
// stays the source of truth for what is applied.
type ExecutionRecord struct {
	ID               string
	Connection       string
	BaseURL          string
	Database         string
	Version          int64
	Name             string
	Direction        string // "up", "down"
	Status           string // "success", "failed", "rolled_back"
	ErrorMessage     string
	ExecutedBy       string // User identifier (from auth context)
	ExecutionMethod  string // "manual", "api", "cli", "worker"
	ExecutionContext string // JSON with additional context (job_id, request_id, etc.)
	Duration         time.Duration
	AppliedAt        time.Time
}

// HistoryFilters narrows History results. Zero values match everything.
type HistoryFilters struct {
	Connection string
	Database   string
	Status     string
	Version    int64
	Limit      int
}

// HistoryStore persists execution records outside the target database.
type HistoryStore interface {
	// Initialize sets up the history tables
	Initialize(ctx context.Context) error

	// RecordExecution appends an execution record
	RecordExecution(ctx context.Context, rec *ExecutionRecord) error

	// History returns records, newest first
	History(ctx context.Context, filters *HistoryFilters) ([]*ExecutionRecord, error)

	Close() error
}
