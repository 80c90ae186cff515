package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
)

const orderColumns = `id, source_address, source_amount, target_amount, exchange_rate,
	deposit_wallet_id, deposit_wallet_address,
	receive_state, receive_tx_hash, receive_amount, received_at,
	send_state, send_tx_hash, send_amount, sent_at,
	status, error_message, notification_sent, expires_at, created_at, updated_at`

type OrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

func (r *OrderRepository) Create(order model.Order) error {
	_, err := r.db.Exec(`
		INSERT INTO orders (id, source_address, source_amount, target_amount, exchange_rate,
			deposit_wallet_id, deposit_wallet_address, receive_state, send_state, status,
			expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, order.ID, order.SourceAddress, order.SourceAmount, order.TargetAmount, order.ExchangeRate,
		order.DepositWalletID, order.DepositWalletAddress, order.ReceiveState, order.SendState,
		order.Status, order.ExpiresAt, order.CreatedAt, order.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Info("Created order",
		zap.String("order_id", order.ID),
		zap.String("source_address", order.SourceAddress),
		zap.String("source_amount", order.SourceAmount.String()),
		zap.String("target_amount", order.TargetAmount.String()),
		zap.String("deposit_wallet", order.DepositWalletAddress))
	return nil
}

func (r *OrderRepository) GetByID(orderID string) (*model.Order, error) {
	row := r.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order by ID: %w", err)
	}

	return order, nil
}

// FindAwaitingDeposit returns orders the matcher should still poll for: deposit
// not yet seen and deadline not yet passed.
func (r *OrderRepository) FindAwaitingDeposit(now time.Time) ([]model.Order, error) {
	rows, err := r.db.Query(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE receive_state = 'waiting' AND status = 'pending' AND expires_at > $1
		ORDER BY created_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find orders awaiting deposit: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// FindExpired returns orders still waiting for a deposit whose deadline has passed.
func (r *OrderRepository) FindExpired(now time.Time) ([]model.Order, error) {
	rows, err := r.db.Query(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE receive_state = 'waiting' AND status IN ('pending', 'processing') AND expires_at < $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// MarkReceived records the matched deposit. The update only wins while the
// receive side is still 'waiting'; the unique index on receive_tx_hash rejects
// a transfer hash already consumed by another order, reported as no-match.
func (r *OrderRepository) MarkReceived(orderID, txHash string, amount decimal.Decimal, receivedAt time.Time) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET receive_state = 'received', receive_tx_hash = $1, receive_amount = $2,
			received_at = $3, status = 'processing', updated_at = NOW()
		WHERE id = $4 AND receive_state = 'waiting'
	`, txHash, amount, receivedAt, orderID)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			r.logger.Warn("Transfer already consumed by another order",
				zap.String("order_id", orderID),
				zap.String("tx_hash", txHash))
			return false, nil
		}
		return false, fmt.Errorf("failed to mark order received: %w", err)
	}

	return wonUpdate(result)
}

// BeginSettlement claims the send side for one executor. Only one caller can
// move pending -> processing, which serializes settlement per order.
func (r *OrderRepository) BeginSettlement(orderID string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET send_state = 'processing', status = 'processing', error_message = '', updated_at = NOW()
		WHERE id = $1 AND receive_state = 'received' AND send_state = 'pending'
	`, orderID)

	if err != nil {
		return false, fmt.Errorf("failed to begin settlement: %w", err)
	}

	return wonUpdate(result)
}

func (r *OrderRepository) CompleteSettlement(orderID, txHash string, amount decimal.Decimal, sentAt time.Time) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET send_state = 'completed', send_tx_hash = $1, send_amount = $2, sent_at = $3,
			status = 'completed', updated_at = NOW()
		WHERE id = $4 AND send_state = 'processing'
	`, txHash, amount, sentAt, orderID)

	if err != nil {
		return false, fmt.Errorf("failed to complete settlement: %w", err)
	}

	return wonUpdate(result)
}

func (r *OrderRepository) FailSettlement(orderID, errorMessage string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET send_state = 'failed', status = 'failed', error_message = $1, updated_at = NOW()
		WHERE id = $2 AND send_state = 'processing'
	`, errorMessage, orderID)

	if err != nil {
		return false, fmt.Errorf("failed to fail settlement: %w", err)
	}

	return wonUpdate(result)
}

// RetrySettlement re-arms a failed send. Operator action only; requires the
// deposit side to have actually been received.
func (r *OrderRepository) RetrySettlement(orderID string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET send_state = 'pending', status = 'processing', error_message = '', updated_at = NOW()
		WHERE id = $1 AND receive_state = 'received' AND send_state = 'failed'
	`, orderID)

	if err != nil {
		return false, fmt.Errorf("failed to retry settlement: %w", err)
	}

	won, err := wonUpdate(result)
	if won {
		r.logger.Info("Reset failed settlement for retry", zap.String("order_id", orderID))
	}
	return won, err
}

func (r *OrderRepository) MarkTimedOut(orderID string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET receive_state = 'timeout', status = 'timeout', updated_at = NOW()
		WHERE id = $1 AND receive_state = 'waiting'
	`, orderID)

	if err != nil {
		return false, fmt.Errorf("failed to mark order timed out: %w", err)
	}

	return wonUpdate(result)
}

// MarkNotified flips the at-most-once notification guard. Returns false when
// a notification was already recorded for this order.
func (r *OrderRepository) MarkNotified(orderID string) (bool, error) {
	result, err := r.db.Exec(`
		UPDATE orders
		SET notification_sent = TRUE, updated_at = NOW()
		WHERE id = $1 AND notification_sent = FALSE
	`, orderID)

	if err != nil {
		return false, fmt.Errorf("failed to mark order notified: %w", err)
	}

	return wonUpdate(result)
}

func wonUpdate(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var order model.Order
	var receiveTxHash, sendTxHash sql.NullString
	var receiveAmount, sendAmount decimal.NullDecimal
	var receivedAt, sentAt sql.NullTime

	err := row.Scan(&order.ID, &order.SourceAddress, &order.SourceAmount, &order.TargetAmount,
		&order.ExchangeRate, &order.DepositWalletID, &order.DepositWalletAddress,
		&order.ReceiveState, &receiveTxHash, &receiveAmount, &receivedAt,
		&order.SendState, &sendTxHash, &sendAmount, &sentAt,
		&order.Status, &order.ErrorMessage, &order.NotificationSent,
		&order.ExpiresAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if receiveTxHash.Valid {
		order.ReceiveTxHash = &receiveTxHash.String
	}
	if receiveAmount.Valid {
		order.ReceiveAmount = &receiveAmount.Decimal
	}
	if receivedAt.Valid {
		order.ReceivedAt = &receivedAt.Time
	}
	if sendTxHash.Valid {
		order.SendTxHash = &sendTxHash.String
	}
	if sendAmount.Valid {
		order.SendAmount = &sendAmount.Decimal
	}
	if sentAt.Valid {
		order.SentAt = &sentAt.Time
	}

	return &order, nil
}

func collectOrders(rows *sql.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, nil
}
