package repository

import (
	"database/sql"
	"fmt"
)

// InitMigration initializes the database. In production, this would use a proper migration
// library like go-migrate
func InitMigration(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			source_address VARCHAR(64) NOT NULL,
			source_amount DECIMAL(30,6) NOT NULL,
			target_amount DECIMAL(30,6) NOT NULL,
			exchange_rate DECIMAL(30,6) NOT NULL,
			deposit_wallet_id UUID NOT NULL,
			deposit_wallet_address VARCHAR(64) NOT NULL,
			receive_state VARCHAR(20) NOT NULL DEFAULT 'waiting',
			receive_tx_hash VARCHAR(66),
			receive_amount DECIMAL(30,6),
			received_at TIMESTAMP,
			send_state VARCHAR(20) NOT NULL DEFAULT 'pending',
			send_tx_hash VARCHAR(66),
			send_amount DECIMAL(30,6),
			sent_at TIMESTAMP,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		// A deposit transfer may settle at most one order, even when two orders
		// share a deposit wallet and overlapping amount tolerances.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_receive_tx_hash ON orders (receive_tx_hash) WHERE receive_tx_hash IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_orders_receive_status_expiry ON orders (receive_state, status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_send_status ON orders (send_state, status)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id UUID PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			address VARCHAR(64) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			priority INTEGER NOT NULL DEFAULT 0,
			key_handle TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE(address)
		)`,
		`CREATE TABLE IF NOT EXISTS notification_outbox (
			id BIGSERIAL PRIMARY KEY,
			order_id UUID NOT NULL,
			kind VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			payload JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_outbox_status ON notification_outbox (status, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}
