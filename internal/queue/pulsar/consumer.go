package pulsar

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/queue"
)

// Consumer implements queue.Consumer using Pulsar
type Consumer struct {
	client   pulsar.Client
	consumer pulsar.Consumer
	topic    string
}

// NewConsumer creates a new Pulsar consumer. The subscription is a
// key-shared one so jobs of one connection are handled by one worker at a time.
func NewConsumer(url, topic, subscriptionName string) (*Consumer, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pulsar client: %w", err)
	}

	consumer, err := client.Subscribe(pulsar.ConsumerOptions{
		Topic:            topic,
		SubscriptionName: subscriptionName,
		Type:             pulsar.KeyShared,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create Pulsar consumer: %w", err)
	}

	return &Consumer{
		client:   client,
		consumer: consumer,
		topic:    topic,
	}, nil
}

// Consume receives jobs until ctx is cancelled. A handler error nacks the
// message for redelivery; undecodable messages are acknowledged and dropped.
func (c *Consumer) Consume(ctx context.Context, handler queue.JobHandler) error {
	logger.Infof("Starting Pulsar consumer for topic %s", c.topic)

	for {
		msg, err := c.consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Info("Pulsar consumer context cancelled")
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive message from Pulsar: %w", err)
		}

		job, err := queue.Decode(msg.Payload(), fallbackID(msg))
		if err != nil {
			logger.Errorf("Failed to decode job from Pulsar message: %v", err)
			_ = c.consumer.Ack(msg)
			continue
		}

		logger.Infof("Processing migration job %s from Pulsar", job.ID)
		result, err := handler(ctx, job)
		if err != nil {
			logger.Errorf("Failed to process migration job %s: %v", job.ID, err)
			c.consumer.Nack(msg)
			continue
		}

		if err := c.consumer.Ack(msg); err != nil {
			logger.Errorf("Failed to acknowledge message for job %s: %v", job.ID, err)
		}
		queue.LogResult(job, result)
	}
}

// Close closes the Pulsar consumer
func (c *Consumer) Close() error {
	c.consumer.Close()
	c.client.Close()
	return nil
}

func fallbackID(msg pulsar.Message) string {
	if id, ok := msg.Properties()["job-id"]; ok {
		return id
	}
	return msg.Key()
}
