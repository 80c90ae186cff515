package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
	"swap/apps/swap/internal/repository"
)

// Publisher drains unsent outbox notifications to the Kafka notification topic.
type Publisher struct {
	logger        *zap.Logger
	kafkaProducer *kafka.Producer
	kafkaTopic    string
	repository    *repository.NotificationRepository
	mu            sync.Mutex // Protects concurrent access to publishing operations
}

func NewPublisher(kafkaBroker, kafkaTopic string, logger *zap.Logger, repository *repository.NotificationRepository) (*Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Publisher{
		logger:        logger,
		kafkaProducer: producer,
		kafkaTopic:    kafkaTopic,
		repository:    repository,
	}, nil
}

func (p *Publisher) StartPublishing() {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := p.publishUnsent(); err != nil {
			p.logger.Error("Error publishing notifications to Kafka", zap.Error(err))
		}
	}
}

func (p *Publisher) publishUnsent() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	notifications, err := p.repository.GetUnsentForProcessing(100)
	if err != nil {
		return err
	}

	successCount := 0
	for _, notification := range notifications {
		if err := p.publishToKafka(notification); err != nil {
			p.logger.Error("Failed to publish notification to Kafka",
				zap.Int64("id", notification.ID),
				zap.String("order_id", notification.OrderID),
				zap.String("kind", notification.Kind),
				zap.Error(err))
			// Return the row to 'unsent' for the next pass
			if markErr := p.repository.MarkFailed(notification.ID); markErr != nil {
				p.logger.Error("Failed to mark notification as failed", zap.Int64("id", notification.ID), zap.Error(markErr))
			}
			continue
		}

		if err := p.repository.MarkSent(notification.ID); err != nil {
			p.logger.Error("Failed to mark notification as sent", zap.Int64("id", notification.ID), zap.Error(err))
			// Note: the event was published but marking failed - this could lead to a duplicate send
		} else {
			successCount++
		}
	}

	if successCount > 0 {
		p.logger.Info("Published notifications to Kafka",
			zap.Int("success_count", successCount),
			zap.Int("attempted", len(notifications)))
	}

	return nil
}

func (p *Publisher) publishToKafka(notification model.OutboxNotification) error {
	deliveryChan := make(chan kafka.Event)
	defer close(deliveryChan)

	err := p.kafkaProducer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.kafkaTopic, Partition: kafka.PartitionAny},
		Key:            []byte(notification.OrderID), // Order id as key keeps per-order ordering
		Value:          notification.Payload,
	}, deliveryChan)

	if err != nil {
		return err
	}

	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		if ev.TopicPartition.Error != nil {
			return ev.TopicPartition.Error
		}
		return nil
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (p *Publisher) Close() error {
	if p.kafkaProducer != nil {
		p.kafkaProducer.Close()
	}
	return nil
}
