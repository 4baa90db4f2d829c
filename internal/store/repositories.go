package store

import (
	"context"
	"time"
)

// ConnectionRepository handles connection lifecycle and sync bookkeeping.
type ConnectionRepository interface {
	Create(ctx context.Context, conn Connection) (*Connection, error)
	GetByID(ctx context.Context, id string) (*Connection, error)
	ListByUser(ctx context.Context, userID string) ([]Connection, error)
	// ListDue returns connections whose sync interval has elapsed at now.
	ListDue(ctx context.Context, now time.Time) ([]Connection, error)
	UpdateTokens(ctx context.Context, id, accessEnc string, refreshEnc *string, expiresAt *time.Time) error
	SetStatus(ctx context.Context, id string, status ConnectionStatus, lastError *string) error
	RecordPass(ctx context.Context, id string, outcome PassOutcome) error
	Disconnect(ctx context.Context, userID, id string) error
}

// MirrorRepository stores per-item sync state, unique per (connection, remote id).
type MirrorRepository interface {
	Get(ctx context.Context, connectionID, remoteID string) (*MirrorRecord, error)
	Upsert(ctx context.Context, rec MirrorRecord) (*MirrorRecord, error)
	ListByConnection(ctx context.Context, connectionID string) ([]MirrorRecord, error)
}

// DocumentRepository handles document metadata.
type DocumentRepository interface {
	Create(ctx context.Context, doc Document) (*Document, error)
	Update(ctx context.Context, doc Document) (*Document, error)
	GetByID(ctx context.Context, userID, id string) (*Document, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Document, error)
}

// EventRepository handles calendar events.
type EventRepository interface {
	Create(ctx context.Context, event Event) (*Event, error)
	Update(ctx context.Context, event Event) (*Event, error)
	GetByID(ctx context.Context, userID, id string) (*Event, error)
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Event, error)
	// ListForPush returns the user's events that have no mirror on the
	// connection or changed after their mirror was last written.
	ListForPush(ctx context.Context, userID, connectionID string) ([]PushCandidate, error)
	ListDueReminders(ctx context.Context, from, to time.Time) ([]Event, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

// NotificationRepository handles the per-user notification list.
type NotificationRepository interface {
	Create(ctx context.Context, n Notification) (*Notification, error)
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}
