package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
	"swap/apps/swap/internal/events"
)

// Mailer delivers one notification to the customer. Email delivery itself is
// an external collaborator; delivery failures are logged here and never reach
// order state.
type Mailer interface {
	Send(event events.NotificationEvent) error
}

// LogMailer is the default Mailer. It records the notification instead of
// delivering it; deployments plug in a real provider.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(event events.NotificationEvent) error {
	m.logger.Info("Would send notification email",
		zap.String("order_id", event.OrderID),
		zap.String("kind", event.Kind),
		zap.String("status", event.Status),
		zap.String("error_message", event.ErrorMessage))
	return nil
}

// MailWorker consumes the notification topic and hands each event to the Mailer.
type MailWorker struct {
	logger        *zap.Logger
	kafkaConsumer *kafka.Consumer
	kafkaTopic    string
	mailer        Mailer
}

func NewMailWorker(kafkaBroker, kafkaTopic string, logger *zap.Logger, mailer Mailer) (*MailWorker, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"group.id":          "notification-mailer",
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &MailWorker{
		logger:        logger,
		kafkaConsumer: consumer,
		kafkaTopic:    kafkaTopic,
		mailer:        mailer,
	}, nil
}

func (w *MailWorker) Start() error {
	w.logger.Info("Starting notification mail worker...")

	if err := w.kafkaConsumer.Subscribe(w.kafkaTopic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", w.kafkaTopic, err)
	}

	for {
		msg, err := w.kafkaConsumer.ReadMessage(-1)
		if err != nil {
			w.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := w.processMessage(msg); err != nil {
			w.logger.Error("Error processing notification",
				zap.String("key", string(msg.Key)),
				zap.Error(err))
		}
	}
}

func (w *MailWorker) processMessage(msg *kafka.Message) error {
	var event events.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal notification event: %w", err)
	}

	if err := w.mailer.Send(event); err != nil {
		return fmt.Errorf("failed to deliver notification for order %s: %w", event.OrderID, err)
	}

	return nil
}

func (w *MailWorker) Close() error {
	if w.kafkaConsumer != nil {
		return w.kafkaConsumer.Close()
	}
	return nil
}
