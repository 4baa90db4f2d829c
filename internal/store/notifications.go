package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, user_id, severity, title, message, document_id, event_id, task_id, read, actions, created_at, read_at`

// notificationRepo implements NotificationRepository.
type notificationRepo struct {
	pool DB
}

func scanNotification(row scanner) (*Notification, error) {
	var (
		n       Notification
		actions []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Severity, &n.Title, &n.Message, &n.DocumentID, &n.EventID,
		&n.TaskID, &n.Read, &actions, &n.CreatedAt, &n.ReadAt); err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &n.Actions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	}
	return &n, nil
}

func (r *notificationRepo) Create(ctx context.Context, n Notification) (*Notification, error) {
	defer observeDB(ctx, "notifications.create")()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Actions == nil {
		n.Actions = []NotificationAction{}
	}
	actions, err := json.Marshal(n.Actions)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}

	const q = `INSERT INTO notifications (id, user_id, severity, title, message, document_id, event_id, task_id, actions)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at`
	err = r.pool.QueryRow(ctx, q, n.ID, n.UserID, n.Severity, n.Title, n.Message, n.DocumentID, n.EventID,
		n.TaskID, actions).Scan(&n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return &n, nil
}

// MarkRead is idempotent: marking an already read notification keeps its
// original read_at.
func (r *notificationRepo) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	defer observeDB(ctx, "notifications.mark_read")()

	const q = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, q, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return affectedOrNotFound(tag)
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	defer observeDB(ctx, "notifications.mark_all_read")()

	const q = `UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND read = FALSE`
	tag, err := r.pool.Exec(ctx, q, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *notificationRepo) Delete(ctx context.Context, userID, id string) error {
	defer observeDB(ctx, "notifications.delete")()

	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return affectedOrNotFound(tag)
}

func (r *notificationRepo) List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]Notification, error) {
	defer observeDB(ctx, "notifications.list")()

	q := `SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = $1 AND ($2 = FALSE OR read = FALSE)
ORDER BY created_at DESC
LIMIT $3`
	rows, err := r.pool.Query(ctx, q, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *notificationRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	defer observeDB(ctx, "notifications.unread_count")()

	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
