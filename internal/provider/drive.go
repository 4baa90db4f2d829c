package provider

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v3"
)

const (
	defaultPageSize = 100
	folderMimeType  = "application/vnd.google-apps.folder"
	driveFields     = "nextPageToken, files(id, name, mimeType, size, createdTime, modifiedTime)"
)

// DriveClient lists and downloads files in one Drive folder.
type DriveClient struct {
	svc *drive.Service
}

// NewDriveClient wraps an existing service.
func NewDriveClient(svc *drive.Service) *DriveClient {
	return &DriveClient{svc: svc}
}

// ListItems lists non-trashed files directly inside q.FolderID.
func (c *DriveClient) ListItems(ctx context.Context, q Query) (*Page, error) {
	if q.FolderID == "" {
		return nil, &ListingError{Op: "drive list", listing: true, err: fmt.Errorf("folder id is empty")}
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	call := c.svc.Files.List().
		Q(driveQuery(q.FolderID, q.MimeTypes)).
		Fields(driveFields).
		PageSize(pageSize).
		OrderBy("createdTime").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if q.Cursor != "" {
		call = call.PageToken(q.Cursor)
	}

	res, err := call.Do()
	if err != nil {
		return nil, wrapErr("drive list", true, err)
	}

	page := &Page{NextCursor: res.NextPageToken, Items: make([]Item, 0, len(res.Files))}
	for _, f := range res.Files {
		page.Items = append(page.Items, Item{
			ID:         f.Id,
			Name:       f.Name,
			MimeType:   f.MimeType,
			Size:       f.Size,
			CreatedAt:  parseTime(f.CreatedTime),
			ModifiedAt: parseTime(f.ModifiedTime),
		})
	}
	return page, nil
}

func driveQuery(folderID string, mimeTypes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' in parents and trashed = false and mimeType != '%s'", escapeQuery(folderID), folderMimeType)
	if len(mimeTypes) > 0 {
		parts := make([]string, 0, len(mimeTypes))
		for _, mt := range mimeTypes {
			parts = append(parts, fmt.Sprintf("mimeType = '%s'", escapeQuery(mt)))
		}
		b.WriteString(" and (" + strings.Join(parts, " or ") + ")")
	}
	return b.String()
}

func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// Download reads the file content. At most limit+1 bytes are read so an
// oversized file is detected without buffering all of it.
func (c *DriveClient) Download(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	resp, err := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, wrapErr("drive download", false, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, wrapErr("drive download", false, err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
