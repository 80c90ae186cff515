package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
	"swap/apps/swap/internal/rate"
)

func newTestService(store OrderStore, wallets WalletDirectory, quote rate.Quote) *OrderService {
	return NewOrderService(store, wallets, &fakeOracle{quote: quote}, 30*time.Minute, zap.NewNop())
}

func TestCreateOrderLocksInRate(t *testing.T) {
	store := newFakeStore()
	wallets := &fakeWallets{wallets: []model.Wallet{testWallet()}}
	oracle := &fakeOracle{quote: rate.Quote{Rate: dec("3.4"), BaseRate: dec("3.4"), Mode: rate.ModeManual}}
	service := NewOrderService(store, wallets, oracle, 30*time.Minute, zap.NewNop())

	order, err := service.CreateOrder(context.Background(), testSourceAddress, dec("100"))
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	if !order.TargetAmount.Equal(dec("340.000000")) {
		t.Errorf("Expected target amount 340.000000, got %s", order.TargetAmount)
	}
	if !order.ExchangeRate.Equal(dec("3.4")) {
		t.Errorf("Expected exchange rate 3.4, got %s", order.ExchangeRate)
	}
	if order.DepositWalletAddress != testWalletAddress {
		t.Errorf("Expected deposit wallet %s, got %s", testWalletAddress, order.DepositWalletAddress)
	}
	if order.ReceiveState != model.ReceiveStateWaiting || order.SendState != model.SendStatePending {
		t.Errorf("New order must start waiting/pending, got %s/%s", order.ReceiveState, order.SendState)
	}
	if !order.ExpiresAt.After(order.CreatedAt) {
		t.Error("Expected expiry deadline after creation time")
	}

	// A later rate change never retroactively affects the order.
	oracle.quote.Rate = dec("9.9")
	stored, _ := store.GetByID(order.ID)
	if !stored.ExchangeRate.Equal(dec("3.4")) {
		t.Errorf("Rate change leaked into existing order: %s", stored.ExchangeRate)
	}
	if !stored.TargetAmount.Equal(dec("340.000000")) {
		t.Errorf("Rate change leaked into existing target amount: %s", stored.TargetAmount)
	}
}

func TestCreateOrderPricingIsDeterministic(t *testing.T) {
	store := newFakeStore()
	wallets := &fakeWallets{wallets: []model.Wallet{testWallet()}}
	service := newTestService(store, wallets, rate.Quote{Rate: dec("0.123457"), Mode: rate.ModeRealtime})

	first, err := service.CreateOrder(context.Background(), testSourceAddress, dec("55.5"))
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	second, err := service.CreateOrder(context.Background(), testSourceAddress, dec("55.5"))
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}

	if !first.TargetAmount.Equal(second.TargetAmount) {
		t.Errorf("Same inputs must price identically: %s vs %s", first.TargetAmount, second.TargetAmount)
	}
	if first.TargetAmount.Exponent() < -6 {
		t.Errorf("Target amount must be rounded to 6 decimal places, got %s", first.TargetAmount)
	}
}

func TestCreateOrderWithoutEnabledWallet(t *testing.T) {
	store := newFakeStore()
	wallets := &fakeWallets{}
	service := newTestService(store, wallets, rate.Quote{Rate: dec("3.4")})

	_, err := service.CreateOrder(context.Background(), testSourceAddress, dec("100"))
	if !errors.Is(err, ErrNoWalletAvailable) {
		t.Fatalf("Expected ErrNoWalletAvailable, got %v", err)
	}

	// Nothing may be persisted on a failed creation.
	orders, _ := store.FindAwaitingDeposit(time.Now().Add(-24 * time.Hour))
	if len(orders) != 0 {
		t.Errorf("Expected no persisted orders, got %d", len(orders))
	}
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	store := newFakeStore()
	wallets := &fakeWallets{wallets: []model.Wallet{testWallet()}}
	service := newTestService(store, wallets, rate.Quote{Rate: dec("3.4")})

	if _, err := service.CreateOrder(context.Background(), "", dec("100")); err == nil {
		t.Error("Expected error for empty source address")
	}
	if _, err := service.CreateOrder(context.Background(), testSourceAddress, dec("0")); err == nil {
		t.Error("Expected error for zero amount")
	}
	if _, err := service.CreateOrder(context.Background(), testSourceAddress, dec("-5")); err == nil {
		t.Error("Expected error for negative amount")
	}
}
