package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"swap/apps/swap/internal/model"
)

type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

func (r *NotificationRepository) Enqueue(orderID, kind string, payload []byte) error {
	_, err := r.db.Exec(`
		INSERT INTO notification_outbox (order_id, kind, payload)
		VALUES ($1, $2, $3)
	`, orderID, kind, payload)

	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	r.logger.Info("Enqueued notification",
		zap.String("order_id", orderID),
		zap.String("kind", kind))
	return nil
}

// GetUnsentForProcessing claims up to limit unsent notifications and marks them
// 'processing' so concurrent publishers never pick up the same rows.
func (r *NotificationRepository) GetUnsentForProcessing(limit int) ([]model.OutboxNotification, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() // Will be ignored if tx.Commit() succeeds

	rows, err := tx.Query(`
		SELECT id, order_id, kind, status, payload, created_at
		FROM notification_outbox
		WHERE status = 'unsent'
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []model.OutboxNotification
	for rows.Next() {
		var n model.OutboxNotification
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Kind, &n.Status, &n.Payload, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	rows.Close()

	for _, n := range notifications {
		_, err = tx.Exec(`
			UPDATE notification_outbox
			SET status = 'processing'
			WHERE id = $1 AND status = 'unsent'
		`, n.ID)
		if err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *NotificationRepository) MarkSent(id int64) error {
	_, err := r.db.Exec(`
		UPDATE notification_outbox
		SET status = 'sent'
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed returns the row to 'unsent' so the next publisher pass retries it.
func (r *NotificationRepository) MarkFailed(id int64) error {
	_, err := r.db.Exec(`
		UPDATE notification_outbox
		SET status = 'unsent'
		WHERE id = $1 AND status = 'processing'
	`, id)
	return err
}
