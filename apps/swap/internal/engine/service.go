package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
	"swap/apps/swap/internal/rate"
)

// OrderService creates orders: it locks in the current exchange rate, assigns
// a deposit wallet and fixes the expiry deadline. The rate and amounts on an
// order never change after this point.
type OrderService struct {
	store        OrderStore
	wallets      WalletDirectory
	oracle       RateSource
	orderTimeout time.Duration
	logger       *zap.Logger
}

func NewOrderService(store OrderStore, wallets WalletDirectory, oracle RateSource, orderTimeout time.Duration, logger *zap.Logger) *OrderService {
	return &OrderService{
		store:        store,
		wallets:      wallets,
		oracle:       oracle,
		orderTimeout: orderTimeout,
		logger:       logger,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, sourceAddress string, sourceAmount decimal.Decimal) (*model.Order, error) {
	if sourceAddress == "" {
		return nil, fmt.Errorf("source address is required")
	}
	if sourceAmount.Sign() <= 0 {
		return nil, fmt.Errorf("source amount must be positive, got %s", sourceAmount)
	}

	wallet, err := s.wallets.SelectWallet()
	if err != nil {
		return nil, fmt.Errorf("failed to select deposit wallet: %w", err)
	}
	if wallet == nil {
		return nil, ErrNoWalletAvailable
	}

	quote := s.oracle.GetRate(ctx)
	targetAmount := sourceAmount.Mul(quote.Rate).Round(rate.RatePrecision)

	now := time.Now().UTC()
	order := model.Order{
		ID:                   uuid.New().String(),
		SourceAddress:        sourceAddress,
		SourceAmount:         sourceAmount,
		TargetAmount:         targetAmount,
		ExchangeRate:         quote.Rate,
		DepositWalletID:      wallet.ID,
		DepositWalletAddress: wallet.Address,
		ReceiveState:         model.ReceiveStateWaiting,
		SendState:            model.SendStatePending,
		Status:               model.StatusPending,
		ExpiresAt:            now.Add(s.orderTimeout),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.store.Create(order); err != nil {
		return nil, err
	}

	s.logger.Info("Created exchange order",
		zap.String("order_id", order.ID),
		zap.String("source_amount", sourceAmount.String()),
		zap.String("target_amount", targetAmount.String()),
		zap.String("rate", quote.Rate.String()),
		zap.String("rate_mode", quote.Mode),
		zap.Time("expires_at", order.ExpiresAt))

	return &order, nil
}

func (s *OrderService) GetOrder(orderID string) (*model.Order, error) {
	return s.store.GetByID(orderID)
}
