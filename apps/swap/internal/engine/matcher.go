package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"swap/apps/swap/internal/ledger"
	"swap/apps/swap/internal/model"
)

// A deposit matches when it deviates from the requested amount by at most 1%.
var toleranceRatio = decimal.NewFromFloat(0.01)

// DepositMatcher polls the ledger for transfers into each waiting order's
// deposit address and hands matched orders to the settlement executor within
// the same cycle. Orders whose receive side has left 'waiting' are never
// reconsidered.
type DepositMatcher struct {
	store         OrderStore
	ledger        LedgerClient
	executor      *SettlementExecutor
	tokenContract string
	interval      time.Duration
	maxWorkers    int
	logger        *zap.Logger
}

func NewDepositMatcher(store OrderStore, ledgerClient LedgerClient, executor *SettlementExecutor,
	tokenContract string, interval time.Duration, maxWorkers int, logger *zap.Logger) *DepositMatcher {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &DepositMatcher{
		store:         store,
		ledger:        ledgerClient,
		executor:      executor,
		tokenContract: tokenContract,
		interval:      interval,
		maxWorkers:    maxWorkers,
		logger:        logger,
	}
}

// Start runs the polling loop until the context is cancelled.
func (m *DepositMatcher) Start(ctx context.Context) error {
	m.logger.Info("Starting deposit matcher", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle processes all orders still waiting for a deposit. Per-order work
// fans out onto a bounded worker pool; one stuck or failing order never stalls
// the rest of the cycle.
func (m *DepositMatcher) RunCycle(ctx context.Context) {
	orders, err := m.store.FindAwaitingDeposit(time.Now().UTC())
	if err != nil {
		m.logger.Error("Failed to load orders awaiting deposit", zap.Error(err))
		return
	}

	if len(orders) == 0 {
		return
	}

	sem := make(chan struct{}, m.maxWorkers)
	var wg sync.WaitGroup
	for _, order := range orders {
		wg.Add(1)
		sem <- struct{}{}
		go func(order model.Order) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := m.matchOrder(ctx, order); err != nil {
				m.logger.Error("Error matching order",
					zap.String("order_id", order.ID),
					zap.Error(err))
			}
		}(order)
	}
	wg.Wait()
}

func (m *DepositMatcher) matchOrder(ctx context.Context, order model.Order) error {
	transfers, err := m.ledger.ListIncomingTransfers(ctx, order.DepositWalletAddress, m.tokenContract, order.CreatedAt)
	if err != nil {
		// Transient; the next cycle retries.
		return err
	}

	transfer, found := findMatch(order, transfers)
	if !found {
		return nil
	}

	won, err := m.store.MarkReceived(order.ID, transfer.TxHash, transfer.Amount, transfer.Timestamp)
	if err != nil {
		return err
	}
	if !won {
		// Another worker matched this order first, or the transfer hash is
		// already consumed elsewhere.
		return nil
	}

	m.logger.Info("Matched deposit",
		zap.String("order_id", order.ID),
		zap.String("tx_hash", transfer.TxHash),
		zap.String("expected_amount", order.SourceAmount.String()),
		zap.String("received_amount", transfer.Amount.String()))

	// Hand off to settlement in the same cycle rather than waiting for a poll.
	return m.executor.Settle(ctx, order.ID)
}

// findMatch returns the first transfer sent by the order's source address whose
// amount is within tolerance of the requested amount.
func findMatch(order model.Order, transfers []ledger.Transfer) (ledger.Transfer, bool) {
	for _, transfer := range transfers {
		if !strings.EqualFold(transfer.From, order.SourceAddress) {
			continue
		}
		if withinTolerance(order.SourceAmount, transfer.Amount) {
			return transfer, true
		}
	}
	return ledger.Transfer{}, false
}

func withinTolerance(expected, actual decimal.Decimal) bool {
	tolerance := expected.Mul(toleranceRatio)
	return actual.Sub(expected).Abs().LessThanOrEqual(tolerance)
}
