package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/toolsascode/arcade/internal/logger"
)

// Directions a job can run in.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Job represents a migration job to be queued
type Job struct {
	ID            string                 `json:"id"`
	Connection    string                 `json:"connection"`
	Direction     string                 `json:"direction"`
	TargetVersion int64                  `json:"target_version,omitempty"`
	DryRun        bool                   `json:"dry_run,omitempty"`
	EnqueuedAt    time.Time              `json:"enqueued_at"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the fields a worker needs to run the job.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Connection) == "" {
		return fmt.Errorf("job %s: connection is required", j.ID)
	}
	switch j.Direction {
	case DirectionUp, DirectionDown:
	default:
		return fmt.Errorf("job %s: unsupported direction %q", j.ID, j.Direction)
	}
	if j.TargetVersion < 0 {
		return fmt.Errorf("job %s: invalid target version %d", j.ID, j.TargetVersion)
	}
	return nil
}

// JobResult represents the result of a migration job
type JobResult struct {
	JobID   string  `json:"job_id"`
	Success bool    `json:"success"`
	DryRun  bool    `json:"dry_run,omitempty"`
	Applied []int64 `json:"applied"`
	Planned []int64 `json:"planned"`
	Error   string  `json:"error,omitempty"`
}

// Producer publishes migration jobs to the queue
type Producer interface {
	// PublishJob publishes a migration job to the queue
	PublishJob(ctx context.Context, job *Job) error

	// Close closes the producer connection
	Close() error
}

// Consumer consumes migration jobs from the queue
type Consumer interface {
	// Consume starts consuming jobs from the queue
	// The handler function is called for each job
	Consume(ctx context.Context, handler JobHandler) error

	// Close closes the consumer connection
	Close() error
}

// JobHandler processes a migration job
type JobHandler func(ctx context.Context, job *Job) (*JobResult, error)

// Queue provides both producer and consumer capabilities
type Queue interface {
	Producer
	Consumer
}

// Prepare fills in the job id and enqueue time and returns the wire payload.
func Prepare(job *Job) ([]byte, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

// Decode parses a wire payload. fallbackID is used when the body carries no id.
func Decode(payload []byte, fallbackID string) (*Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" {
		job.ID = fallbackID
	}
	return &job, nil
}

// LogResult reports a finished job.
func LogResult(job *Job, result *JobResult) {
	if result == nil {
		return
	}
	if result.Success {
		logger.Infof("Processed migration job %s: %d applied, %d planned",
			job.ID, len(result.Applied), len(result.Planned))
		return
	}
	logger.Warnf("Migration job %s completed with error: %s", job.ID, result.Error)
}
