package model

import (
	"time"
)

// Notification kinds.
const (
	NotifyCompleted = "completed"
	NotifyFailed    = "failed"
	NotifyTimeout   = "timeout"
)

// OutboxNotification is one queued user notification. Rows are written in the
// same transaction scope as the order transition that caused them and drained
// to Kafka by the notifier publisher.
type OutboxNotification struct {
	ID           int64     `db:"id"`
	OrderID      string    `db:"order_id"`
	Kind         string    `db:"kind"`
	Status       string    `db:"status"` // unsent, processing, sent
	Payload      []byte    `db:"payload"`
	CreatedAt    time.Time `db:"created_at"`
}
