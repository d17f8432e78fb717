package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"auction-house/internal/auctionerrors"
	model "auction-house/internal/models"
	"auction-house/internal/repository"
)

// NotificationRepository implements repository.NotificationDB on PostgreSQL.
type NotificationRepository struct {
	pool DBTX
}

var _ repository.NotificationDB = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new PostgreSQL-backed notification repository.
func NewNotificationRepository(pool DBTX) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// CreateNotification inserts a new notification.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, auction_id, message, delivered, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.NotificationID, n.UserID, n.AuctionID, n.Message, n.Delivered, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, auction_id, message, delivered, created_at
		 FROM notifications WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications by user: %w", err)
	}
	return collectNotifications(rows)
}

// ListUndelivered returns a user's undelivered notifications, oldest first.
func (r *NotificationRepository) ListUndelivered(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, auction_id, message, delivered, created_at
		 FROM notifications WHERE user_id = $1 AND NOT delivered
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list undelivered notifications: %w", err)
	}
	return collectNotifications(rows)
}

// MarkDelivered flags a notification as delivered.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, notificationID string) error {
	ct, err := r.pool.Exec(ctx, `UPDATE notifications SET delivered = TRUE WHERE id = $1`, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification delivered: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("mark notification %s delivered: %w", notificationID, auctionerrors.ErrNotificationNotFound)
	}
	return nil
}

func collectNotifications(rows pgx.Rows) ([]model.Notification, error) {
	defer rows.Close()

	out := make([]model.Notification, 0)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.AuctionID, &n.Message, &n.Delivered, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}
