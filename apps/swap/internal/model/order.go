package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receive-side states of an order.
const (
	ReceiveStateWaiting  = "waiting"
	ReceiveStateReceived = "received"
	ReceiveStateTimeout  = "timeout"
)

// Send-side states of an order.
const (
	SendStatePending    = "pending"
	SendStateProcessing = "processing"
	SendStateCompleted  = "completed"
	SendStateFailed     = "failed"
)

// Overall order status, derived from the two sub-states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
)

type Order struct {
	ID                   string          `db:"id"`
	SourceAddress        string          `db:"source_address"`
	SourceAmount         decimal.Decimal `db:"source_amount"`
	TargetAmount         decimal.Decimal `db:"target_amount"`
	ExchangeRate         decimal.Decimal `db:"exchange_rate"`
	DepositWalletID      string          `db:"deposit_wallet_id"`
	DepositWalletAddress string          `db:"deposit_wallet_address"`
	ReceiveState         string          `db:"receive_state"`
	ReceiveTxHash        *string         `db:"receive_tx_hash"` // nullable until a deposit matches
	ReceiveAmount        *decimal.Decimal `db:"receive_amount"`
	ReceivedAt           *time.Time      `db:"received_at"`
	SendState            string          `db:"send_state"`
	SendTxHash           *string         `db:"send_tx_hash"`
	SendAmount           *decimal.Decimal `db:"send_amount"`
	SentAt               *time.Time      `db:"sent_at"`
	Status               string          `db:"status"`
	ErrorMessage         string          `db:"error_message"`
	NotificationSent     bool            `db:"notification_sent"`
	ExpiresAt            time.Time       `db:"expires_at"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

// DeriveStatus maps the receive/send sub-states to the externally visible
// order status. Timeout on the receive side wins over everything else.
func DeriveStatus(receiveState, sendState string) string {
	if receiveState == ReceiveStateTimeout {
		return StatusTimeout
	}
	if receiveState == ReceiveStateWaiting {
		return StatusPending
	}
	switch sendState {
	case SendStateCompleted:
		return StatusCompleted
	case SendStateFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}
