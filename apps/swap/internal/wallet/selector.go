package wallet

import (
	"fmt"

	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
)

// Directory is the read-only view of the wallet-management subsystem.
type Directory interface {
	ListEnabled() ([]model.Wallet, error)
	GetByID(walletID string) (*model.Wallet, error)
}

// Selector picks the custodial wallet used to receive a new order's deposit.
// The repository returns enabled wallets already ordered by priority, so the
// first entry wins.
type Selector struct {
	directory Directory
	logger    *zap.Logger
}

func NewSelector(directory Directory, logger *zap.Logger) *Selector {
	return &Selector{directory: directory, logger: logger}
}

// SelectWallet returns the highest-priority enabled wallet, or nil when no
// wallet is enabled. A nil result is a retryable condition for the caller, not
// a crash; order creation fails until an operator enables a wallet.
func (s *Selector) SelectWallet() (*model.Wallet, error) {
	wallets, err := s.directory.ListEnabled()
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled wallets: %w", err)
	}

	if len(wallets) == 0 {
		s.logger.Warn("No enabled wallet available for deposit")
		return nil, nil
	}

	return &wallets[0], nil
}

// GetWalletByID resolves the wallet recorded on an existing order. Settlement
// must use the same wallet the deposit address belonged to.
func (s *Selector) GetWalletByID(walletID string) (*model.Wallet, error) {
	wallet, err := s.directory.GetByID(walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet %s: %w", walletID, err)
	}
	return wallet, nil
}
