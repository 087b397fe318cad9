package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Notification is one row of the transactional outbox. The cart core writes
// them alongside its own state; the publisher drains them to the broker.
type Notification struct {
	ID          int64
	EventType   string
	AggregateID string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

func (r *Repository) EnqueueNotification(ctx context.Context, n *Notification) error {
	query := `INSERT INTO cart_notifications (event_type, aggregate_id, payload, published, created_at)
	          VALUES ($1, $2, $3, FALSE, NOW())`

	if _, err := r.db.ExecContext(ctx, query, n.EventType, n.AggregateID, n.Payload); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

func (r *Repository) UnpublishedNotifications(ctx context.Context, limit int) ([]*Notification, error) {
	query := `SELECT id, event_type, aggregate_id, payload, created_at
	          FROM cart_notifications WHERE NOT published ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		if err := rows.Scan(&n.ID, &n.EventType, &n.AggregateID, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return notifications, nil
}

func (r *Repository) MarkNotificationPublished(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE cart_notifications SET published = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark notification published: %w", err)
	}
	return nil
}
