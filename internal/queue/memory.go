package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/toolsascode/arcade/internal/logger"
)

// ErrClosed is returned by a closed Memory queue.
var ErrClosed = errors.New("queue closed")

// Memory is an in-process Queue. Jobs go through the same wire encoding as
// the broker-backed queues.
type Memory struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates an in-process queue holding up to size pending jobs.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 64
	}
	return &Memory{ch: make(chan []byte, size), done: make(chan struct{})}
}

// PublishJob implements Producer.
func (m *Memory) PublishJob(ctx context.Context, job *Job) error {
	data, err := Prepare(job)
	if err != nil {
		return err
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.ch <- data:
		logger.Debugf("Queued migration job %s in memory", job.ID)
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume implements Consumer. It returns when ctx is done or the queue is
// closed.
func (m *Memory) Consume(ctx context.Context, handler JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrClosed
		case data := <-m.ch:
			job, err := Decode(data, "")
			if err != nil {
				logger.Errorf("Dropping undecodable job: %v", err)
				continue
			}
			result, err := handler(ctx, job)
			if err != nil {
				logger.Errorf("Failed to process migration job %s: %v", job.ID, err)
				continue
			}
			LogResult(job, result)
		}
	}
}

// Pending reports how many jobs wait to be consumed.
func (m *Memory) Pending() int {
	return len(m.ch)
}

// Close implements Producer and Consumer.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
