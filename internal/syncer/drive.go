package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jw6ventures/casefile/internal/blobstore"
	"github.com/jw6ventures/casefile/internal/provider"
	"github.com/jw6ventures/casefile/internal/realtime"
	"github.com/jw6ventures/casefile/internal/store"
)

func (p *pass) pullDrive(ctx context.Context, api provider.DriveAPI) (*string, error) {
	folder := deref(p.conn.FolderID)
	if folder == "" {
		return p.conn.SyncCursor, errors.New("drive connection has no folder")
	}

	page, err := p.list(func(cursor string) (*provider.Page, error) {
		return api.ListItems(ctx, provider.Query{
			FolderID: folder,
			Cursor:   cursor,
			PageSize: p.engine.opts.PageSize,
		})
	})
	if err != nil {
		return p.conn.SyncCursor, err
	}

	for i, item := range page.Items {
		p.pullFile(ctx, api, item)
		p.report("pull", i+1, len(page.Items), item.Name)
	}
	return cursorOf(page.NextCursor), nil
}

func (p *pass) pullFile(ctx context.Context, api provider.DriveAPI, item provider.Item) {
	mirror, err := p.lookup(ctx, item.ID)
	if err != nil {
		p.recordFailure(item.ID, item.Name, err)
		return
	}
	if p.engine.unchanged(mirror, item.ModifiedAt) {
		p.skipped(item)
		return
	}

	docID, err := p.syncFile(ctx, api, item, mirror)
	if err != nil {
		p.failed(ctx, item, mirror, nil, err)
		return
	}
	p.synced(ctx, item, mirror, docID)
}

func (p *pass) syncFile(ctx context.Context, api provider.DriveAPI, item provider.Item, mirror *store.MirrorRecord) (string, error) {
	e := p.engine
	if err := validateFileMeta(item, e.opts.MaxFileBytes); err != nil {
		return "", err
	}

	data, err := api.Download(ctx, item.ID, e.opts.MaxFileBytes)
	if errors.Is(err, provider.ErrTooLarge) {
		return "", fmt.Errorf("%w: %w", ErrItemValidation, err)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrItemTransfer, err)
	}
	if err := validateFileContent(item.Name, data); err != nil {
		return "", err
	}

	existing := mirror != nil && mirror.LocalID != nil
	docID := uuid.NewString()
	if existing {
		docID = *mirror.LocalID
	}
	sum := sha256.Sum256(data)
	doc := store.Document{
		ID:         docID,
		UserID:     p.conn.UserID,
		Title:      strings.TrimSuffix(item.Name, filepath.Ext(item.Name)),
		FileName:   item.Name,
		MimeType:   contentType(item),
		SizeBytes:  int64(len(data)),
		StorageKey: blobstore.DocumentKey(p.conn.UserID, docID, item.Name),
		Checksum:   hex.EncodeToString(sum[:]),
		Source:     SourceDrive,
	}

	if err := e.deps.Blobs.Put(ctx, doc.StorageKey, doc.MimeType, data); err != nil {
		return "", fmt.Errorf("%w: store content: %w", ErrItemTransfer, err)
	}

	saved, err := p.saveDocument(ctx, doc, existing)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrItemPersistence, err)
	}
	e.emit(p.conn.UserID, realtime.EventDocumentUpdated, map[string]any{
		"id":     saved.ID,
		"title":  saved.Title,
		"source": saved.Source,
	})
	return saved.ID, nil
}

// saveDocument updates the mirrored document in place, recreating it if it
// was removed locally.
func (p *pass) saveDocument(ctx context.Context, doc store.Document, existing bool) (*store.Document, error) {
	docs := p.engine.deps.Documents
	if existing {
		saved, err := docs.Update(ctx, doc)
		if !errors.Is(err, store.ErrNotFound) {
			return saved, err
		}
	}
	return docs.Create(ctx, doc)
}
