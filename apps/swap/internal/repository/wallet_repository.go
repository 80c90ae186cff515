package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
)

type WalletRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewWalletRepository(db *sql.DB, logger *zap.Logger) *WalletRepository {
	return &WalletRepository{db: db, logger: logger}
}

// ListEnabled returns enabled wallets ordered by descending priority, wallet id
// breaking ties so the ordering is deterministic.
func (r *WalletRepository) ListEnabled() ([]model.Wallet, error) {
	rows, err := r.db.Query(`
		SELECT id, name, address, enabled, priority, key_handle, created_at
		FROM wallets
		WHERE enabled = TRUE
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled wallets: %w", err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		var wallet model.Wallet
		if err := rows.Scan(&wallet.ID, &wallet.Name, &wallet.Address, &wallet.Enabled,
			&wallet.Priority, &wallet.KeyHandle, &wallet.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}

	return wallets, nil
}

func (r *WalletRepository) GetByID(walletID string) (*model.Wallet, error) {
	var wallet model.Wallet
	err := r.db.QueryRow(`
		SELECT id, name, address, enabled, priority, key_handle, created_at
		FROM wallets
		WHERE id = $1
	`, walletID).Scan(&wallet.ID, &wallet.Name, &wallet.Address, &wallet.Enabled,
		&wallet.Priority, &wallet.KeyHandle, &wallet.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet by ID: %w", err)
	}

	return &wallet, nil
}
