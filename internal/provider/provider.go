// Package provider lists and fetches remote items from Google Drive and
// Google Calendar on behalf of a single connection.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/googleapi"
)

var (
	// ErrListingFailed marks a failed listing call. It is fatal for a pass.
	ErrListingFailed = errors.New("remote listing failed")
	// ErrRequestFailed marks a failed per-item call (download, get, write).
	ErrRequestFailed = errors.New("remote request failed")
	// ErrTooLarge is returned by downloads that exceed the requested limit.
	ErrTooLarge = errors.New("remote file exceeds size limit")
)

// Item is one remote file or event as returned by a listing.
type Item struct {
	ID         string
	Name       string
	MimeType   string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Page is one batch of listed items. NextCursor is empty on the last page.
type Page struct {
	Items      []Item
	NextCursor string
}

// Query scopes a listing.
type Query struct {
	FolderID   string
	CalendarID string
	Cursor     string
	PageSize   int64
	// MimeTypes restricts a Drive listing when non-empty.
	MimeTypes []string
	// TimeMin bounds calendar listings; zero means now.
	TimeMin time.Time
}

// EventBody is the full content of a calendar event.
type EventBody struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
	TimeZone    string
	Updated     time.Time
}

// DriveAPI is the Drive capability used by sync passes.
type DriveAPI interface {
	ListItems(ctx context.Context, q Query) (*Page, error)
	Download(ctx context.Context, fileID string, limit int64) ([]byte, error)
}

// CalendarAPI is the Calendar capability used by sync passes.
type CalendarAPI interface {
	ListItems(ctx context.Context, q Query) (*Page, error)
	GetEvent(ctx context.Context, calendarID, eventID string) (*EventBody, error)
	InsertEvent(ctx context.Context, calendarID string, ev EventBody) (*EventBody, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev EventBody) (*EventBody, error)
}

// ListingError carries the provider's status and error body.
type ListingError struct {
	Op      string
	Status  int
	Body    string
	listing bool
	err     error
}

func (e *ListingError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *ListingError) Unwrap() error { return e.err }

func (e *ListingError) Is(target error) bool {
	if e.listing {
		return target == ErrListingFailed
	}
	return target == ErrRequestFailed
}

func wrapErr(op string, listing bool, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ListingError{Op: op, listing: listing, err: err}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return &ListingError{Op: op, Status: gerr.Code, Body: body, listing: listing, err: err}
	}
	return &ListingError{Op: op, listing: listing, err: err}
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
