package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const mirrorColumns = `id, connection_id, remote_id, remote_name, mime_type, size_bytes, remote_modified_at,
status, retry_count, error_message, local_id, created_at, updated_at`

// mirrorRepo implements MirrorRepository.
type mirrorRepo struct {
	pool DB
}

func scanMirror(row scanner) (*MirrorRecord, error) {
	var m MirrorRecord
	if err := row.Scan(
		&m.ID, &m.ConnectionID, &m.RemoteID, &m.RemoteName, &m.MimeType, &m.SizeBytes, &m.RemoteModifiedAt,
		&m.Status, &m.RetryCount, &m.ErrorMessage, &m.LocalID, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mirrorRepo) Get(ctx context.Context, connectionID, remoteID string) (*MirrorRecord, error) {
	defer observeDB(ctx, "mirrors.get")()

	q := `SELECT ` + mirrorColumns + ` FROM mirror_records WHERE connection_id = $1 AND remote_id = $2`
	rec, err := scanMirror(r.pool.QueryRow(ctx, q, connectionID, remoteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mirror %s/%s: %w", connectionID, remoteID, err)
	}
	return rec, nil
}

// Upsert writes rec keyed on (connection_id, remote_id). The row id of an
// existing record is preserved.
func (r *mirrorRepo) Upsert(ctx context.Context, rec MirrorRecord) (*MirrorRecord, error) {
	defer observeDB(ctx, "mirrors.upsert")()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = MirrorPending
	}

	const q = `INSERT INTO mirror_records (id, connection_id, remote_id, remote_name, mime_type, size_bytes,
remote_modified_at, status, retry_count, error_message, local_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (connection_id, remote_id) DO UPDATE SET
    remote_name = EXCLUDED.remote_name,
    mime_type = EXCLUDED.mime_type,
    size_bytes = EXCLUDED.size_bytes,
    remote_modified_at = EXCLUDED.remote_modified_at,
    status = EXCLUDED.status,
    retry_count = EXCLUDED.retry_count,
    error_message = EXCLUDED.error_message,
    local_id = EXCLUDED.local_id,
    updated_at = NOW()
RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, q,
		rec.ID, rec.ConnectionID, rec.RemoteID, rec.RemoteName, rec.MimeType, rec.SizeBytes,
		rec.RemoteModifiedAt, rec.Status, rec.RetryCount, rec.ErrorMessage, rec.LocalID,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert mirror %s/%s: %w", rec.ConnectionID, rec.RemoteID, err)
	}
	return &rec, nil
}

func (r *mirrorRepo) ListByConnection(ctx context.Context, connectionID string) ([]MirrorRecord, error) {
	defer observeDB(ctx, "mirrors.list_by_connection")()

	q := `SELECT ` + mirrorColumns + ` FROM mirror_records WHERE connection_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	var out []MirrorRecord
	for rows.Next() {
		rec, err := scanMirror(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mirror: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
