package queuefactory

import (
	"fmt"
	"strings"

	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/queue"
	"github.com/toolsascode/arcade/internal/queue/kafka"
	"github.com/toolsascode/arcade/internal/queue/pulsar"
)

// QueueConfig holds configuration for creating a queue
type QueueConfig struct {
	Type               string   // "kafka", "pulsar" or "memory"
	KafkaBrokers       []string // Kafka broker addresses
	KafkaTopic         string   // Kafka topic name
	KafkaGroupID       string   // Kafka consumer group ID
	PulsarURL          string   // Pulsar service URL
	PulsarTopic        string   // Pulsar topic name
	PulsarSubscription string   // Pulsar subscription name
	MemorySize         int      // buffer of the in-process queue
}

// FromConfig extracts the queue settings of the application config.
func FromConfig(cfg *config.Config) *QueueConfig {
	return &QueueConfig{
		Type:               cfg.Queue.Type,
		KafkaBrokers:       cfg.Queue.KafkaBrokers,
		KafkaTopic:         cfg.Queue.KafkaTopic,
		KafkaGroupID:       cfg.Queue.KafkaGroupID,
		PulsarURL:          cfg.Queue.PulsarURL,
		PulsarTopic:        cfg.Queue.PulsarTopic,
		PulsarSubscription: cfg.Queue.PulsarSubscription,
		MemorySize:         cfg.Queue.MemorySize,
	}
}

// NewQueue creates a new queue based on the configuration
func NewQueue(config *QueueConfig) (queue.Queue, error) {
	queueType := strings.ToLower(config.Type)
	if queueType == "" {
		queueType = "kafka" // Default to Kafka
	}

	switch queueType {
	case "kafka":
		if len(config.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka brokers are required")
		}
		if config.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka topic is required")
		}
		if config.KafkaGroupID == "" {
			config.KafkaGroupID = "arcade-migration-workers"
		}
		return kafka.NewQueue(config.KafkaBrokers, config.KafkaTopic, config.KafkaGroupID), nil

	case "pulsar":
		if config.PulsarURL == "" {
			return nil, fmt.Errorf("pulsar URL is required")
		}
		if config.PulsarTopic == "" {
			return nil, fmt.Errorf("pulsar topic is required")
		}
		if config.PulsarSubscription == "" {
			config.PulsarSubscription = "arcade-migration-workers"
		}
		return pulsar.NewQueue(config.PulsarURL, config.PulsarTopic, config.PulsarSubscription)

	case "memory":
		return queue.NewMemory(config.MemorySize), nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: kafka, pulsar, memory)", config.Type)
	}
}
