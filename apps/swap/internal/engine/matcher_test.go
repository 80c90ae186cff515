package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"swap/apps/swap/internal/ledger"
	"swap/apps/swap/internal/model"
)

func depositTransfer(from, amount, txHash string) ledger.Transfer {
	return ledger.Transfer{
		From:      from,
		Amount:    dec(amount),
		TxHash:    txHash,
		Timestamp: time.Now().UTC(),
	}
}

func TestMatcherSettlesMatchedDeposit(t *testing.T) {
	// Order for 100 at rate 3.4; a transfer of 99.2 from the right sender is
	// within the 1% tolerance and settles 340 in the same cycle.
	eng := newTestEngine()
	order := waitingOrder("order-1", dec("100"), dec("3.4"))
	if err := eng.store.Create(order); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, "99.2", "0xdeposit1"))

	eng.matcher.RunCycle(context.Background())

	matched, _ := eng.store.GetByID(order.ID)
	if matched.ReceiveState != model.ReceiveStateReceived {
		t.Fatalf("Expected receive state received, got %s", matched.ReceiveState)
	}
	if matched.ReceiveTxHash == nil || *matched.ReceiveTxHash != "0xdeposit1" {
		t.Error("Expected receive tx hash to be recorded")
	}
	if matched.ReceiveAmount == nil || !matched.ReceiveAmount.Equal(dec("99.2")) {
		t.Errorf("Expected receive amount 99.2, got %v", matched.ReceiveAmount)
	}
	if matched.Status != model.StatusCompleted {
		t.Errorf("Expected settlement in the same cycle, status %s", matched.Status)
	}
	if matched.SendAmount == nil || !matched.SendAmount.Equal(dec("340.000000")) {
		t.Errorf("Expected payout of 340.000000, got %v", matched.SendAmount)
	}
}

func TestMatcherToleranceBoundary(t *testing.T) {
	cases := []struct {
		name        string
		amount      string
		shouldMatch bool
	}{
		{"exact amount", "100", true},
		{"low edge of tolerance", "99", true},
		{"high edge of tolerance", "101", true},
		{"just below tolerance", "98.99", false},
		{"just above tolerance", "101.01", false},
		{"unrelated small transfer", "1", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := newTestEngine()
			order := waitingOrder("order-1", dec("100"), dec("3.4"))
			if err := eng.store.Create(order); err != nil {
				t.Fatalf("Failed to create order: %v", err)
			}
			eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, tc.amount, "0xdeposit1"))

			eng.matcher.RunCycle(context.Background())

			matched, _ := eng.store.GetByID(order.ID)
			gotMatch := matched.ReceiveState == model.ReceiveStateReceived
			if gotMatch != tc.shouldMatch {
				t.Errorf("Transfer of %s: match = %v, want %v", tc.amount, gotMatch, tc.shouldMatch)
			}
		})
	}
}

func TestMatcherSenderAddressCaseInsensitive(t *testing.T) {
	eng := newTestEngine()
	order := waitingOrder("order-1", dec("100"), dec("3.4"))
	if err := eng.store.Create(order); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(strings.ToUpper(testSourceAddress), "100", "0xdeposit1"))

	eng.matcher.RunCycle(context.Background())

	matched, _ := eng.store.GetByID(order.ID)
	if matched.ReceiveState != model.ReceiveStateReceived {
		t.Error("Sender address comparison must be case-insensitive")
	}
}

func TestMatcherIgnoresWrongSender(t *testing.T) {
	eng := newTestEngine()
	order := waitingOrder("order-1", dec("100"), dec("3.4"))
	if err := eng.store.Create(order); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	eng.ledger.addTransfer(testWalletAddress, depositTransfer("0xSomeoneElse", "100", "0xdeposit1"))

	eng.matcher.RunCycle(context.Background())

	unmatched, _ := eng.store.GetByID(order.ID)
	if unmatched.ReceiveState != model.ReceiveStateWaiting {
		t.Error("Transfer from a different sender must not match")
	}
}

func TestMatcherFirstMatchingTransferWins(t *testing.T) {
	eng := newTestEngine()
	order := waitingOrder("order-1", dec("100"), dec("3.4"))
	if err := eng.store.Create(order); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, "50", "0xtoosmall"))
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, "100", "0xfirstmatch"))
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, "100.5", "0xsecondmatch"))

	eng.matcher.RunCycle(context.Background())

	matched, _ := eng.store.GetByID(order.ID)
	if matched.ReceiveTxHash == nil || *matched.ReceiveTxHash != "0xfirstmatch" {
		t.Errorf("Expected first matching transfer to win, got %v", matched.ReceiveTxHash)
	}
}

func TestMatcherDeduplicatesTransferAcrossOrders(t *testing.T) {
	// Two orders with overlapping tolerances share a deposit wallet; a single
	// transfer may settle only one of them.
	eng := newTestEngine()
	orderA := waitingOrder("order-a", dec("100"), dec("3.4"))
	orderB := waitingOrder("order-b", dec("100.5"), dec("3.4"))
	if err := eng.store.Create(orderA); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	if err := eng.store.Create(orderB); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, "100.2", "0xshared"))

	eng.matcher.RunCycle(context.Background())

	a, _ := eng.store.GetByID(orderA.ID)
	b, _ := eng.store.GetByID(orderB.ID)

	received := 0
	if a.ReceiveState == model.ReceiveStateReceived {
		received++
	}
	if b.ReceiveState == model.ReceiveStateReceived {
		received++
	}
	if received != 1 {
		t.Errorf("Expected exactly 1 order to consume the shared transfer, got %d", received)
	}
	if calls := atomic.LoadInt32(&eng.ledger.sendCalls); calls != 1 {
		t.Errorf("Expected exactly 1 payout, got %d", calls)
	}
}

func TestMatcherSkipsTimedOutOrders(t *testing.T) {
	eng := newTestEngine()
	order := waitingOrder("order-1", dec("100"), dec("3.4"))
	order.ReceiveState = model.ReceiveStateTimeout
	order.Status = model.StatusTimeout
	if err := eng.store.Create(order); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	eng.ledger.addTransfer(testWalletAddress, depositTransfer(testSourceAddress, "100", "0xlate"))

	eng.matcher.RunCycle(context.Background())

	timedOut, _ := eng.store.GetByID(order.ID)
	if timedOut.ReceiveState != model.ReceiveStateTimeout {
		t.Error("A timed-out order must never transition to received")
	}
	if atomic.LoadInt32(&eng.ledger.sendCalls) != 0 {
		t.Error("A late deposit on a timed-out order must not be settled")
	}
}

func TestMatcherIgnoresTransfersBeforeOrderCreation(t *testing.T) {
	eng := newTestEngine()
	order := waitingOrder("order-1", dec("100"), dec("3.4"))
	if err := eng.store.Create(order); err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}

	old := depositTransfer(testSourceAddress, "100", "0xstale")
	old.Timestamp = order.CreatedAt.Add(-time.Hour)
	eng.ledger.addTransfer(testWalletAddress, old)

	eng.matcher.RunCycle(context.Background())

	unmatched, _ := eng.store.GetByID(order.ID)
	if unmatched.ReceiveState != model.ReceiveStateWaiting {
		t.Error("A transfer predating the order must not match")
	}
}
