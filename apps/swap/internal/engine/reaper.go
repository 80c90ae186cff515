package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
)

// ExpiryReaper marks orders that never received their deposit as timed out
// once the deadline passes. Timeout is terminal: the matcher stops considering
// the order, and a deposit arriving afterwards is handled manually.
type ExpiryReaper struct {
	store    OrderStore
	notifier Notifier
	interval time.Duration
	logger   *zap.Logger
}

func NewExpiryReaper(store OrderStore, notifier Notifier, interval time.Duration, logger *zap.Logger) *ExpiryReaper {
	return &ExpiryReaper{
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the reaping loop until the context is cancelled.
func (r *ExpiryReaper) Start(ctx context.Context) error {
	r.logger.Info("Starting expiry reaper", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RunCycle()
		}
	}
}

// RunCycle times out every waiting order whose deadline has passed.
func (r *ExpiryReaper) RunCycle() {
	orders, err := r.store.FindExpired(time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to load expired orders", zap.Error(err))
		return
	}

	for _, order := range orders {
		won, err := r.store.MarkTimedOut(order.ID)
		if err != nil {
			r.logger.Error("Failed to time out order", zap.String("order_id", order.ID), zap.Error(err))
			continue
		}
		if !won {
			continue
		}

		r.logger.Info("Order timed out waiting for deposit",
			zap.String("order_id", order.ID),
			zap.Time("expires_at", order.ExpiresAt))

		notifyOnce(r.store, r.notifier, r.logger, order.ID, model.NotifyTimeout)
	}
}
