package events

import (
	"time"
)

// NotificationEvent is the message published to the notification topic for
// every terminal order outcome.
type NotificationEvent struct {
	OrderID       string    `json:"order_id"`
	Kind          string    `json:"kind"` // completed, failed, timeout
	Status        string    `json:"status"`
	SourceAddress string    `json:"source_address"`
	SourceAmount  string    `json:"source_amount"`
	TargetAmount  string    `json:"target_amount"`
	ExchangeRate  string    `json:"exchange_rate"`
	ReceiveTxHash string    `json:"receive_tx_hash,omitempty"`
	SendTxHash    string    `json:"send_tx_hash,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
