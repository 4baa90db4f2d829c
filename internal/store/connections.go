package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const connectionColumns = `id, user_id, kind, account_email, access_token_enc, refresh_token_enc, token_expires_at,
folder_id, calendar_id, time_zone, direction, sync_interval_seconds, status, total_items, succeeded_items,
failed_items, last_error, sync_cursor, last_sync_at, created_at, updated_at`

// connectionRepo implements ConnectionRepository.
type connectionRepo struct {
	pool DB
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*Connection, error) {
	var (
		c        Connection
		interval int
	)
	if err := row.Scan(
		&c.ID, &c.UserID, &c.Kind, &c.AccountEmail, &c.AccessTokenEnc, &c.RefreshTokenEnc, &c.TokenExpiresAt,
		&c.FolderID, &c.CalendarID, &c.TimeZone, &c.Direction, &interval, &c.Status, &c.TotalItems, &c.SucceededItems,
		&c.FailedItems, &c.LastError, &c.SyncCursor, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.SyncInterval = time.Duration(interval) * time.Second
	return &c, nil
}

func (r *connectionRepo) Create(ctx context.Context, conn Connection) (*Connection, error) {
	defer observeDB(ctx, "connections.create")()

	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Status == "" {
		conn.Status = StatusConnected
	}
	if conn.Direction == "" {
		conn.Direction = DirectionPull
	}

	const q = `INSERT INTO connections (id, user_id, kind, account_email, access_token_enc, refresh_token_enc,
token_expires_at, folder_id, calendar_id, time_zone, direction, sync_interval_seconds, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, q,
		conn.ID, conn.UserID, conn.Kind, conn.AccountEmail, conn.AccessTokenEnc, conn.RefreshTokenEnc,
		conn.TokenExpiresAt, conn.FolderID, conn.CalendarID, conn.TimeZone, conn.Direction,
		int(conn.SyncInterval/time.Second), conn.Status,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert connection: %w", err)
	}
	return &conn, nil
}

func (r *connectionRepo) GetByID(ctx context.Context, id string) (*Connection, error) {
	defer observeDB(ctx, "connections.get")()

	q := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	conn, err := scanConnection(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", id, err)
	}
	return conn, nil
}

func (r *connectionRepo) ListByUser(ctx context.Context, userID string) ([]Connection, error) {
	defer observeDB(ctx, "connections.list_by_user")()

	q := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 ORDER BY created_at`
	return r.list(ctx, q, userID)
}

func (r *connectionRepo) ListDue(ctx context.Context, now time.Time) ([]Connection, error) {
	defer observeDB(ctx, "connections.list_due")()

	q := `SELECT ` + connectionColumns + ` FROM connections
WHERE status IN ('connected', 'error')
  AND sync_interval_seconds > 0
  AND (last_sync_at IS NULL OR last_sync_at + make_interval(secs => sync_interval_seconds) <= $1)
ORDER BY last_sync_at NULLS FIRST`
	return r.list(ctx, q, now)
}

func (r *connectionRepo) list(ctx context.Context, q string, args ...any) ([]Connection, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		out = append(out, *conn)
	}
	return out, rows.Err()
}

func (r *connectionRepo) UpdateTokens(ctx context.Context, id, accessEnc string, refreshEnc *string, expiresAt *time.Time) error {
	defer observeDB(ctx, "connections.update_tokens")()

	const q = `UPDATE connections
SET access_token_enc = $2, refresh_token_enc = COALESCE($3, refresh_token_enc), token_expires_at = $4, updated_at = NOW()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, accessEnc, refreshEnc, expiresAt)
	if err != nil {
		return fmt.Errorf("update tokens for %s: %w", id, err)
	}
	return affectedOrNotFound(tag)
}

func (r *connectionRepo) SetStatus(ctx context.Context, id string, status ConnectionStatus, lastError *string) error {
	defer observeDB(ctx, "connections.set_status")()

	// A disconnect wins over any status written by a pass still running.
	const q = `UPDATE connections
SET status = CASE WHEN status = 'disconnected' THEN status ELSE $2 END, last_error = $3, updated_at = NOW()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, status, lastError)
	if err != nil {
		return fmt.Errorf("set status for %s: %w", id, err)
	}
	return affectedOrNotFound(tag)
}

func (r *connectionRepo) RecordPass(ctx context.Context, id string, outcome PassOutcome) error {
	defer observeDB(ctx, "connections.record_pass")()

	const q = `UPDATE connections
SET status = CASE WHEN status = 'disconnected' THEN status ELSE $2 END, total_items = $3, succeeded_items = $4, failed_items = $5, last_error = $6,
    sync_cursor = $7, last_sync_at = $8, updated_at = NOW()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, outcome.Status, outcome.Total, outcome.Succeeded, outcome.Failed,
		outcome.LastError, outcome.SyncCursor, outcome.FinishedAt)
	if err != nil {
		return fmt.Errorf("record pass for %s: %w", id, err)
	}
	return affectedOrNotFound(tag)
}

func (r *connectionRepo) Disconnect(ctx context.Context, userID, id string) error {
	defer observeDB(ctx, "connections.disconnect")()

	// Tokens are wiped; the row stays because mirror records reference it.
	const q = `UPDATE connections
SET status = 'disconnected', access_token_enc = '', refresh_token_enc = NULL, token_expires_at = NULL, updated_at = NOW()
WHERE id = $1 AND user_id = $2`
	tag, err := r.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", id, err)
	}
	return affectedOrNotFound(tag)
}
