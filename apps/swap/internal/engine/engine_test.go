package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"swap/apps/swap/internal/ledger"
	"swap/apps/swap/internal/model"
	"swap/apps/swap/internal/rate"
)

// In-memory OrderStore with the same conditional-transition semantics as the
// SQL repository, including the transfer-hash uniqueness rule.
type fakeStore struct {
	mu           sync.Mutex
	orders       map[string]*model.Order
	usedTxHashes map[string]string // tx hash -> order id
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:       make(map[string]*model.Order),
		usedTxHashes: make(map[string]string),
	}
}

func (s *fakeStore) Create(order model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("duplicate order id %s", order.ID)
	}
	copied := order
	s.orders[order.ID] = &copied
	return nil
}

func (s *fakeStore) GetByID(orderID string) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	copied := *order
	return &copied, nil
}

func (s *fakeStore) FindAwaitingDeposit(now time.Time) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Order
	for _, order := range s.orders {
		if order.ReceiveState == model.ReceiveStateWaiting &&
			order.Status == model.StatusPending &&
			order.ExpiresAt.After(now) {
			result = append(result, *order)
		}
	}
	return result, nil
}

func (s *fakeStore) FindExpired(now time.Time) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []model.Order
	for _, order := range s.orders {
		if order.ReceiveState == model.ReceiveStateWaiting &&
			(order.Status == model.StatusPending || order.Status == model.StatusProcessing) &&
			order.ExpiresAt.Before(now) {
			result = append(result, *order)
		}
	}
	return result, nil
}

func (s *fakeStore) MarkReceived(orderID, txHash string, amount decimal.Decimal, receivedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.ReceiveState != model.ReceiveStateWaiting {
		return false, nil
	}
	if owner, used := s.usedTxHashes[txHash]; used && owner != orderID {
		return false, nil
	}
	s.usedTxHashes[txHash] = orderID
	order.ReceiveState = model.ReceiveStateReceived
	order.ReceiveTxHash = &txHash
	order.ReceiveAmount = &amount
	order.ReceivedAt = &receivedAt
	order.Status = model.StatusProcessing
	return true, nil
}

func (s *fakeStore) BeginSettlement(orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.ReceiveState != model.ReceiveStateReceived || order.SendState != model.SendStatePending {
		return false, nil
	}
	order.SendState = model.SendStateProcessing
	order.Status = model.StatusProcessing
	order.ErrorMessage = ""
	return true, nil
}

func (s *fakeStore) CompleteSettlement(orderID, txHash string, amount decimal.Decimal, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.SendState != model.SendStateProcessing {
		return false, nil
	}
	order.SendState = model.SendStateCompleted
	order.SendTxHash = &txHash
	order.SendAmount = &amount
	order.SentAt = &sentAt
	order.Status = model.StatusCompleted
	return true, nil
}

func (s *fakeStore) FailSettlement(orderID, errorMessage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.SendState != model.SendStateProcessing {
		return false, nil
	}
	order.SendState = model.SendStateFailed
	order.Status = model.StatusFailed
	order.ErrorMessage = errorMessage
	return true, nil
}

func (s *fakeStore) RetrySettlement(orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.ReceiveState != model.ReceiveStateReceived || order.SendState != model.SendStateFailed {
		return false, nil
	}
	order.SendState = model.SendStatePending
	order.Status = model.StatusProcessing
	order.ErrorMessage = ""
	return true, nil
}

func (s *fakeStore) MarkTimedOut(orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.ReceiveState != model.ReceiveStateWaiting {
		return false, nil
	}
	order.ReceiveState = model.ReceiveStateTimeout
	order.Status = model.StatusTimeout
	return true, nil
}

func (s *fakeStore) MarkNotified(orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok || order.NotificationSent {
		return false, nil
	}
	order.NotificationSent = true
	return true, nil
}

type fakeLedger struct {
	mu         sync.Mutex
	transfers  map[string][]ledger.Transfer // keyed by lowercase deposit address
	sendTxHash string
	sendErr    error
	sendDelay  time.Duration
	sendCalls  int32
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		transfers:  make(map[string][]ledger.Transfer),
		sendTxHash: "0xsendtx",
	}
}

func (l *fakeLedger) addTransfer(depositAddress string, transfer ledger.Transfer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(depositAddress)
	l.transfers[key] = append(l.transfers[key], transfer)
}

func (l *fakeLedger) ListIncomingTransfers(ctx context.Context, depositAddress, tokenContract string, since time.Time) ([]ledger.Transfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []ledger.Transfer
	for _, transfer := range l.transfers[strings.ToLower(depositAddress)] {
		if !transfer.Timestamp.Before(since) {
			result = append(result, transfer)
		}
	}
	return result, nil
}

func (l *fakeLedger) SendNative(ctx context.Context, toAddress string, amount decimal.Decimal, key *ecdsa.PrivateKey) (string, error) {
	atomic.AddInt32(&l.sendCalls, 1)
	if l.sendDelay > 0 {
		time.Sleep(l.sendDelay)
	}
	if l.sendErr != nil {
		return "", l.sendErr
	}
	return l.sendTxHash, nil
}

type fakeWallets struct {
	wallets []model.Wallet
}

func (w *fakeWallets) SelectWallet() (*model.Wallet, error) {
	for i := range w.wallets {
		if w.wallets[i].Enabled {
			return &w.wallets[i], nil
		}
	}
	return nil, nil
}

func (w *fakeWallets) GetWalletByID(walletID string) (*model.Wallet, error) {
	for i := range w.wallets {
		if w.wallets[i].ID == walletID {
			return &w.wallets[i], nil
		}
	}
	return nil, nil
}

type fakeKeys struct {
	key *ecdsa.PrivateKey
}

func newFakeKeys() *fakeKeys {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &fakeKeys{key: key}
}

func (k *fakeKeys) Decrypt(handle string) (*ecdsa.PrivateKey, error) {
	if handle == "bad-handle" {
		return nil, errors.New("failed to decrypt key handle")
	}
	return k.key, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

type notifiedEvent struct {
	orderID string
	kind    string
}

func (n *fakeNotifier) Notify(order model.Order, kind string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{orderID: order.ID, kind: kind})
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeOracle struct {
	quote rate.Quote
}

func (o *fakeOracle) GetRate(ctx context.Context) rate.Quote {
	return o.quote
}

const (
	testWalletID      = "8a9a3b86-0f4e-4a0c-9c2a-111111111111"
	testWalletAddress = "0xDepositWallet00000000000000000000000001"
	testSourceAddress = "0xCustomer000000000000000000000000000001"
	testTokenContract = "0xToken0000000000000000000000000000000001"
)

func testWallet() model.Wallet {
	return model.Wallet{
		ID:        testWalletID,
		Name:      "hot wallet 1",
		Address:   testWalletAddress,
		Enabled:   true,
		Priority:  10,
		KeyHandle: "aabbcc",
	}
}

// waitingOrder builds an order awaiting its deposit.
func waitingOrder(id string, sourceAmount, exchangeRate decimal.Decimal) model.Order {
	now := time.Now().UTC()
	return model.Order{
		ID:                   id,
		SourceAddress:        testSourceAddress,
		SourceAmount:         sourceAmount,
		TargetAmount:         sourceAmount.Mul(exchangeRate).Round(rate.RatePrecision),
		ExchangeRate:         exchangeRate,
		DepositWalletID:      testWalletID,
		DepositWalletAddress: testWalletAddress,
		ReceiveState:         model.ReceiveStateWaiting,
		SendState:            model.SendStatePending,
		Status:               model.StatusPending,
		ExpiresAt:            now.Add(30 * time.Minute),
		CreatedAt:            now.Add(-time.Minute),
		UpdatedAt:            now.Add(-time.Minute),
	}
}

// receivedOrder builds an order with a matched deposit, ready for settlement.
func receivedOrder(id string, sourceAmount, exchangeRate decimal.Decimal) model.Order {
	order := waitingOrder(id, sourceAmount, exchangeRate)
	now := time.Now().UTC()
	txHash := "0xdeposit-" + id
	amount := sourceAmount
	order.ReceiveState = model.ReceiveStateReceived
	order.ReceiveTxHash = &txHash
	order.ReceiveAmount = &amount
	order.ReceivedAt = &now
	order.Status = model.StatusProcessing
	return order
}

type testEngine struct {
	store    *fakeStore
	ledger   *fakeLedger
	wallets  *fakeWallets
	notifier *fakeNotifier
	executor *SettlementExecutor
	matcher  *DepositMatcher
	reaper   *ExpiryReaper
}

func newTestEngine() *testEngine {
	logger := zap.NewNop()
	store := newFakeStore()
	ledgerClient := newFakeLedger()
	wallets := &fakeWallets{wallets: []model.Wallet{testWallet()}}
	notifier := &fakeNotifier{}

	executor := NewSettlementExecutor(store, wallets, newFakeKeys(), ledgerClient, notifier, logger)
	matcher := NewDepositMatcher(store, ledgerClient, executor, testTokenContract, time.Second, 4, logger)
	reaper := NewExpiryReaper(store, notifier, time.Second, logger)

	return &testEngine{
		store:    store,
		ledger:   ledgerClient,
		wallets:  wallets,
		notifier: notifier,
		executor: executor,
		matcher:  matcher,
		reaper:   reaper,
	}
}

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}
