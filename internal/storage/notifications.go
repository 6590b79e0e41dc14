package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/domain"
)

// NotificationLog records which (order, event, channel) notifications went
// out. The unique row is the completion marker that makes redelivered queue
// messages resend only the channels that actually failed.
type NotificationLog struct {
	db *pgxpool.Pool
}

func NewNotificationLog(db *pgxpool.Pool) *NotificationLog {
	return &NotificationLog{db: db}
}

func (l *NotificationLog) WasSent(ctx context.Context, orderID uuid.UUID, eventKey string, channel domain.ChannelKind) (bool, error) {
	var exists bool
	err := l.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notification_log
			WHERE order_id=$1 AND event_type=$2 AND channel=$3
		)
	`, orderID, eventKey, string(channel)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification log: %w", err)
	}
	return exists, nil
}

func (l *NotificationLog) MarkSent(ctx context.Context, orderID uuid.UUID, eventKey string, channel domain.ChannelKind) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO notification_log (order_id, event_type, channel, sent_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (order_id, event_type, channel) DO NOTHING
	`, orderID, eventKey, string(channel))
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}
