package api

import (
	"time"

	"swap/apps/swap/internal/model"
)

// CreateOrderRequest represents the request body for creating an exchange order
type CreateOrderRequest struct {
	SourceAddress string `json:"source_address"`
	SourceAmount  string `json:"source_amount"`
}

// OrderResponse represents the API response for order information
type OrderResponse struct {
	OrderID              string     `json:"order_id"`
	SourceAddress        string     `json:"source_address"`
	SourceAmount         string     `json:"source_amount"`
	TargetAmount         string     `json:"target_amount"`
	ExchangeRate         string     `json:"exchange_rate"`
	DepositWalletAddress string     `json:"deposit_wallet_address"`
	Status               string     `json:"status"`
	ReceiveState         string     `json:"receive_state"`
	ReceiveTxHash        *string    `json:"receive_tx_hash,omitempty"`
	ReceiveAmount        *string    `json:"receive_amount,omitempty"`
	ReceivedAt           *time.Time `json:"received_at,omitempty"`
	SendState            string     `json:"send_state"`
	SendTxHash           *string    `json:"send_tx_hash,omitempty"`
	SendAmount           *string    `json:"send_amount,omitempty"`
	SentAt               *time.Time `json:"sent_at,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	ExpiresAt            time.Time  `json:"expires_at"`
	CreatedAt            time.Time  `json:"created_at"`
}

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func toOrderResponse(order model.Order) OrderResponse {
	response := OrderResponse{
		OrderID:              order.ID,
		SourceAddress:        order.SourceAddress,
		SourceAmount:         order.SourceAmount.String(),
		TargetAmount:         order.TargetAmount.String(),
		ExchangeRate:         order.ExchangeRate.String(),
		DepositWalletAddress: order.DepositWalletAddress,
		Status:               order.Status,
		ReceiveState:         order.ReceiveState,
		ReceiveTxHash:        order.ReceiveTxHash,
		ReceivedAt:           order.ReceivedAt,
		SendState:            order.SendState,
		SendTxHash:           order.SendTxHash,
		SentAt:               order.SentAt,
		ErrorMessage:         order.ErrorMessage,
		ExpiresAt:            order.ExpiresAt,
		CreatedAt:            order.CreatedAt,
	}
	if order.ReceiveAmount != nil {
		amount := order.ReceiveAmount.String()
		response.ReceiveAmount = &amount
	}
	if order.SendAmount != nil {
		amount := order.SendAmount.String()
		response.SendAmount = &amount
	}
	return response
}
