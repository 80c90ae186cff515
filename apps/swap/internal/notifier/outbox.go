package notifier

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"swap/apps/swap/internal/events"
	"swap/apps/swap/internal/model"
	"swap/apps/swap/internal/repository"
)

// OutboxNotifier implements the engine's Notifier by writing the event to the
// notification outbox. The publisher drains the outbox to Kafka, so a slow or
// failing mail provider can never block an order-state transition.
type OutboxNotifier struct {
	repository *repository.NotificationRepository
	logger     *zap.Logger
}

func NewOutboxNotifier(repository *repository.NotificationRepository, logger *zap.Logger) *OutboxNotifier {
	return &OutboxNotifier{repository: repository, logger: logger}
}

func (n *OutboxNotifier) Notify(order model.Order, kind string) error {
	event := events.NotificationEvent{
		OrderID:       order.ID,
		Kind:          kind,
		Status:        order.Status,
		SourceAddress: order.SourceAddress,
		SourceAmount:  order.SourceAmount.String(),
		TargetAmount:  order.TargetAmount.String(),
		ExchangeRate:  order.ExchangeRate.String(),
		ErrorMessage:  order.ErrorMessage,
		Timestamp:     time.Now().UTC(),
	}
	if order.ReceiveTxHash != nil {
		event.ReceiveTxHash = *order.ReceiveTxHash
	}
	if order.SendTxHash != nil {
		event.SendTxHash = *order.SendTxHash
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	return n.repository.Enqueue(order.ID, kind, payload)
}
