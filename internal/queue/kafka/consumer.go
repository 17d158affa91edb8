package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/queue"
)

// Consumer implements queue.Consumer using Kafka
type Consumer struct {
	reader *kafka.Reader
	topic  string
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &Consumer{
		reader: reader,
		topic:  topic,
	}
}

// Consume reads jobs until ctx is cancelled. Offsets are committed after
// the handler returns, whatever the outcome; failed jobs are logged, not
// redelivered.
func (c *Consumer) Consume(ctx context.Context, handler queue.JobHandler) error {
	logger.Infof("Starting Kafka consumer for topic %s", c.topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("Kafka consumer context cancelled")
				return ctx.Err()
			}
			return fmt.Errorf("failed to read message from Kafka: %w", err)
		}

		job, err := queue.Decode(msg.Value, headerValue(msg, "job-id"))
		if err != nil {
			logger.Errorf("Failed to decode job from Kafka message at offset %d: %v", msg.Offset, err)
		} else {
			logger.Infof("Processing migration job %s from Kafka", job.ID)
			result, err := handler(ctx, job)
			if err != nil {
				logger.Errorf("Failed to process migration job %s: %v", job.ID, err)
			}
			queue.LogResult(job, result)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Warnf("Failed to commit Kafka offset %d: %v", msg.Offset, err)
		}
	}
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerValue(msg kafka.Message, key string) string {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}
