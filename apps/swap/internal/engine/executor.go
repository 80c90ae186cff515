package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
)

// SettlementExecutor disburses the target amount for orders whose deposit has
// been received. Entry is serialized per order: a per-order mutex plus the
// store's pending -> processing transition guarantee at most one in-flight
// settlement, whichever path (matcher or manual retry) invoked it.
type SettlementExecutor struct {
	store    OrderStore
	wallets  WalletDirectory
	keys     KeyResolver
	ledger   LedgerClient
	notifier Notifier
	logger   *zap.Logger

	locks sync.Map // order id -> *sync.Mutex
}

func NewSettlementExecutor(store OrderStore, wallets WalletDirectory, keys KeyResolver,
	ledgerClient LedgerClient, notifier Notifier, logger *zap.Logger) *SettlementExecutor {
	return &SettlementExecutor{
		store:    store,
		wallets:  wallets,
		keys:     keys,
		ledger:   ledgerClient,
		notifier: notifier,
		logger:   logger,
	}
}

// Settle attempts the payout for an order. A caller that loses the claim on the
// send side returns without error; the winner's outcome is recorded on the
// order either way, so losing is always safe.
func (e *SettlementExecutor) Settle(ctx context.Context, orderID string) error {
	lock := e.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	won, err := e.store.BeginSettlement(orderID)
	if err != nil {
		return fmt.Errorf("failed to claim settlement for order %s: %w", orderID, err)
	}
	if !won {
		return nil
	}

	order, err := e.store.GetByID(orderID)
	if err != nil {
		return fmt.Errorf("failed to load order %s for settlement: %w", orderID, err)
	}
	if order == nil {
		return fmt.Errorf("order %s disappeared during settlement", orderID)
	}

	wallet, err := e.wallets.GetWalletByID(order.DepositWalletID)
	if err != nil {
		return e.fail(*order, fmt.Sprintf("failed to resolve wallet: %v", err))
	}
	if wallet == nil {
		return e.fail(*order, "wallet not found")
	}

	key, err := e.keys.Decrypt(wallet.KeyHandle)
	if err != nil {
		return e.fail(*order, fmt.Sprintf("failed to resolve signing key: %v", err))
	}

	txHash, err := e.ledger.SendNative(ctx, order.SourceAddress, order.TargetAmount, key)
	if err != nil {
		return e.fail(*order, err.Error())
	}

	sentAt := time.Now().UTC()
	if _, err := e.store.CompleteSettlement(order.ID, txHash, order.TargetAmount, sentAt); err != nil {
		// The payout is on chain; surface the bookkeeping failure loudly.
		return fmt.Errorf("payout sent but failed to record completion for order %s (tx %s): %w", order.ID, txHash, err)
	}

	e.logger.Info("Settled order",
		zap.String("order_id", order.ID),
		zap.String("send_tx_hash", txHash),
		zap.String("send_amount", order.TargetAmount.String()))

	e.notifyOnce(order.ID, model.NotifyCompleted)
	return nil
}

// Retry re-arms a failed settlement and runs it again. Operator action only.
func (e *SettlementExecutor) Retry(ctx context.Context, orderID string) error {
	won, err := e.store.RetrySettlement(orderID)
	if err != nil {
		return fmt.Errorf("failed to reset order %s for retry: %w", orderID, err)
	}
	if !won {
		return ErrNotRetryable
	}

	return e.Settle(ctx, orderID)
}

func (e *SettlementExecutor) fail(order model.Order, reason string) error {
	e.logger.Error("Settlement failed",
		zap.String("order_id", order.ID),
		zap.String("reason", reason))

	if _, err := e.store.FailSettlement(order.ID, reason); err != nil {
		return fmt.Errorf("failed to record settlement failure for order %s: %w", order.ID, err)
	}

	e.notifyOnce(order.ID, model.NotifyFailed)
	return nil
}

func (e *SettlementExecutor) notifyOnce(orderID, kind string) {
	notifyOnce(e.store, e.notifier, e.logger, orderID, kind)
}

// notifyOnce queues the user notification at most once per order, guarded by
// the order's notification_sent flag. Shared by the executor and the reaper.
func notifyOnce(store OrderStore, notifier Notifier, logger *zap.Logger, orderID, kind string) {
	won, err := store.MarkNotified(orderID)
	if err != nil {
		logger.Error("Failed to check notification guard", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if !won {
		return
	}

	order, err := store.GetByID(orderID)
	if err != nil || order == nil {
		logger.Error("Failed to load order for notification", zap.String("order_id", orderID), zap.Error(err))
		return
	}

	if err := notifier.Notify(*order, kind); err != nil {
		logger.Error("Failed to queue notification",
			zap.String("order_id", orderID),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

func (e *SettlementExecutor) lockFor(orderID string) *sync.Mutex {
	lock, _ := e.locks.LoadOrStore(orderID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
