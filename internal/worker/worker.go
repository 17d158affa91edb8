package worker

import (
	"context"

	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/queue"
)

// Runner executes a migration job synchronously. *app.App implements it.
type Runner interface {
	Run(ctx context.Context, job *queue.Job) (*executor.Result, error)
}

// Worker processes migration jobs from the queue
type Worker struct {
	runner Runner
	queue  queue.Consumer
}

// NewWorker creates a new migration worker
func NewWorker(runner Runner, q queue.Consumer) *Worker {
	return &Worker{
		runner: runner,
		queue:  q,
	}
}

// Start consumes jobs until ctx is cancelled or the queue fails.
func (w *Worker) Start(ctx context.Context) error {
	logger.Info("Starting migration worker...")
	return w.queue.Consume(ctx, w.ProcessJob)
}

// ProcessJob runs one job. Transport failures are returned as errors so the
// queue can redeliver the job; every other failure is final and reported in
// the result.
func (w *Worker) ProcessJob(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
	logger.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"connection": job.Connection,
		"direction":  job.Direction,
	}).Info("Processing migration job")

	ctx = executor.SetExecutionContext(ctx, executedBy(job), "queue", map[string]interface{}{
		"job_id":   job.ID,
		"metadata": job.Metadata,
	})

	res, err := w.runner.Run(ctx, job)
	result := &queue.JobResult{
		JobID:   job.ID,
		Success: err == nil,
		Applied: []int64{},
		Planned: []int64{},
	}
	if res != nil {
		result.DryRun = res.DryRun
		result.Applied = res.Versions
		result.Planned = res.Planned
	}
	if err != nil {
		result.Error = err.Error()
		if client.KindOf(err) == client.KindTransport {
			return result, err
		}
	}
	return result, nil
}

// Stop stops the worker
func (w *Worker) Stop() error {
	logger.Info("Stopping migration worker...")
	return w.queue.Close()
}

func executedBy(job *queue.Job) string {
	if by, ok := job.Metadata["executed_by"].(string); ok && by != "" {
		return by
	}
	return "worker"
}
