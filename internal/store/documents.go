package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const documentColumns = `id, user_id, title, file_name, mime_type, size_bytes, storage_key, checksum, source, created_at, updated_at`

// documentRepo implements DocumentRepository.
type documentRepo struct {
	pool DB
}

func scanDocument(row scanner) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.UserID, &d.Title, &d.FileName, &d.MimeType, &d.SizeBytes,
		&d.StorageKey, &d.Checksum, &d.Source, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepo) Create(ctx context.Context, doc Document) (*Document, error) {
	defer observeDB(ctx, "documents.create")()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	const q = `INSERT INTO documents (id, user_id, title, file_name, mime_type, size_bytes, storage_key, checksum, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, doc.ID, doc.UserID, doc.Title, doc.FileName, doc.MimeType, doc.SizeBytes,
		doc.StorageKey, doc.Checksum, doc.Source).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) Update(ctx context.Context, doc Document) (*Document, error) {
	defer observeDB(ctx, "documents.update")()

	const q = `UPDATE documents
SET title = $3, file_name = $4, mime_type = $5, size_bytes = $6, storage_key = $7, checksum = $8, updated_at = NOW()
WHERE id = $1 AND user_id = $2
RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, doc.ID, doc.UserID, doc.Title, doc.FileName, doc.MimeType, doc.SizeBytes,
		doc.StorageKey, doc.Checksum).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update document %s: %w", doc.ID, err)
	}
	return &doc, nil
}

func (r *documentRepo) GetByID(ctx context.Context, userID, id string) (*Document, error) {
	defer observeDB(ctx, "documents.get")()

	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND user_id = $2`
	doc, err := scanDocument(r.pool.QueryRow(ctx, q, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (r *documentRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Document, error) {
	defer observeDB(ctx, "documents.list_by_user")()

	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}
