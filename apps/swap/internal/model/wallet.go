package model

import (
	"time"
)

// Wallet is a platform-controlled custodial address. Wallet records are owned
// by the wallet-management subsystem; the settlement core reads them only.
type Wallet struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Address      string    `db:"address"`
	Enabled      bool      `db:"enabled"`
	Priority     int       `db:"priority"`
	KeyHandle    string    `db:"key_handle"` // encrypted signing key, hex encoded, never logged
	CreatedAt    time.Time `db:"created_at"`
}
