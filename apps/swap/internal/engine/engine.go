package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"swap/apps/swap/internal/ledger"
	"swap/apps/swap/internal/model"
	"swap/apps/swap/internal/rate"
)

// ErrNoWalletAvailable is returned by order creation when no custodial wallet
// is enabled. Retryable once an operator enables one.
var ErrNoWalletAvailable = errors.New("no enabled wallet available")

// ErrNotRetryable is returned by a manual retry when the order is not in a
// failed-send state with a received deposit.
var ErrNotRetryable = errors.New("order is not in a retryable state")

// OrderStore is the durable source of truth for orders. Every mutation is a
// conditional transition guarded by the current state; the boolean result
// reports whether the caller won the update.
type OrderStore interface {
	Create(order model.Order) error
	GetByID(orderID string) (*model.Order, error)
	FindAwaitingDeposit(now time.Time) ([]model.Order, error)
	FindExpired(now time.Time) ([]model.Order, error)
	MarkReceived(orderID, txHash string, amount decimal.Decimal, receivedAt time.Time) (bool, error)
	BeginSettlement(orderID string) (bool, error)
	CompleteSettlement(orderID, txHash string, amount decimal.Decimal, sentAt time.Time) (bool, error)
	FailSettlement(orderID, errorMessage string) (bool, error)
	RetrySettlement(orderID string) (bool, error)
	MarkTimedOut(orderID string) (bool, error)
	MarkNotified(orderID string) (bool, error)
}

// WalletDirectory resolves custodial wallets.
type WalletDirectory interface {
	SelectWallet() (*model.Wallet, error)
	GetWalletByID(walletID string) (*model.Wallet, error)
}

// KeyResolver turns a wallet's encrypted key handle into a signing key.
type KeyResolver interface {
	Decrypt(handle string) (*ecdsa.PrivateKey, error)
}

// LedgerClient abstracts the blockchain reads and writes the engine performs.
type LedgerClient interface {
	ListIncomingTransfers(ctx context.Context, depositAddress, tokenContract string, since time.Time) ([]ledger.Transfer, error)
	SendNative(ctx context.Context, toAddress string, amount decimal.Decimal, key *ecdsa.PrivateKey) (string, error)
}

// RateSource prices new orders.
type RateSource interface {
	GetRate(ctx context.Context) rate.Quote
}

// Notifier queues a user notification for an order. Fire-and-forget from the
// engine's perspective; delivery failures never flow back into order state.
type Notifier interface {
	Notify(order model.Order, kind string) error
}
