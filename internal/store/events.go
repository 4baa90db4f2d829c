package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `id, user_id, title, description, location, starts_at, ends_at, all_day, time_zone, source,
document_id, reminder_sent_at, created_at, updated_at`

// eventRepo implements EventRepository.
type eventRepo struct {
	pool DB
}

func eventScanTargets(e *Event) []any {
	return []any{&e.ID, &e.UserID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt, &e.AllDay,
		&e.TimeZone, &e.Source, &e.DocumentID, &e.ReminderSentAt, &e.CreatedAt, &e.UpdatedAt}
}

func scanEvent(row scanner) (*Event, error) {
	var e Event
	if err := row.Scan(eventScanTargets(&e)...); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepo) Create(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "events.create")()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Source == "" {
		event.Source = "local"
	}
	const q = `INSERT INTO events (id, user_id, title, description, location, starts_at, ends_at, all_day, time_zone, source, document_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, event.ID, event.UserID, event.Title, event.Description, event.Location,
		event.StartsAt, event.EndsAt, event.AllDay, event.TimeZone, event.Source, event.DocumentID,
	).Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &event, nil
}

// Update rewrites the event body. A moved start time re-arms the reminder.
func (r *eventRepo) Update(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "events.update")()

	const q = `UPDATE events
SET title = $3, description = $4, location = $5,
    reminder_sent_at = CASE WHEN starts_at = $6 THEN reminder_sent_at ELSE NULL END,
    starts_at = $6, ends_at = $7, all_day = $8, time_zone = $9, document_id = $10, updated_at = NOW()
WHERE id = $1 AND user_id = $2
RETURNING source, reminder_sent_at, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, event.ID, event.UserID, event.Title, event.Description, event.Location,
		event.StartsAt, event.EndsAt, event.AllDay, event.TimeZone, event.DocumentID,
	).Scan(&event.Source, &event.ReminderSentAt, &event.CreatedAt, &event.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return &event, nil
}

func (r *eventRepo) GetByID(ctx context.Context, userID, id string) (*Event, error) {
	defer observeDB(ctx, "events.get")()

	q := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND user_id = $2`
	event, err := scanEvent(r.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return event, nil
}

func (r *eventRepo) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Event, error) {
	defer observeDB(ctx, "events.list_by_user")()

	q := `SELECT ` + eventColumns + ` FROM events
WHERE user_id = $1 AND ends_at >= $2 AND starts_at <= $3
ORDER BY starts_at`
	return r.list(ctx, q, userID, from, to)
}

func (r *eventRepo) ListDueReminders(ctx context.Context, from, to time.Time) ([]Event, error) {
	defer observeDB(ctx, "events.list_due_reminders")()

	q := `SELECT ` + eventColumns + ` FROM events
WHERE reminder_sent_at IS NULL AND starts_at >= $1 AND starts_at <= $2
ORDER BY starts_at`
	return r.list(ctx, q, from, to)
}

func (r *eventRepo) list(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *event)
	}
	return out, rows.Err()
}

// ListForPush only considers local events and events already mirrored on
// this connection, so events pulled from another calendar are not copied
// across. Local events whose last push failed are offered again.
func (r *eventRepo) ListForPush(ctx context.Context, userID, connectionID string) ([]PushCandidate, error) {
	defer observeDB(ctx, "events.list_for_push")()

	const q = `SELECT e.id, e.user_id, e.title, e.description, e.location, e.starts_at, e.ends_at, e.all_day,
       e.time_zone, e.source, e.document_id, e.reminder_sent_at, e.created_at, e.updated_at, m.remote_id
FROM events e
LEFT JOIN mirror_records m ON m.connection_id = $2 AND m.local_id = e.id
WHERE e.user_id = $1
  AND (e.source = 'local' OR m.id IS NOT NULL)
  AND (m.id IS NULL OR e.updated_at > m.updated_at OR (m.status <> 'completed' AND e.source = 'local'))
ORDER BY e.starts_at`
	rows, err := r.pool.Query(ctx, q, userID, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list push candidates: %w", err)
	}
	defer rows.Close()

	var out []PushCandidate
	for rows.Next() {
		var c PushCandidate
		if err := rows.Scan(append(eventScanTargets(&c.Event), &c.RemoteID)...); err != nil {
			return nil, fmt.Errorf("scan push candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *eventRepo) MarkReminded(ctx context.Context, id string, at time.Time) error {
	defer observeDB(ctx, "events.mark_reminded")()

	tag, err := r.pool.Exec(ctx, `UPDATE events SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded %s: %w", id, err)
	}
	return affectedOrNotFound(tag)
}
