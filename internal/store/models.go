package store

import "time"

// ConnectionKind identifies which Google product a connection points at.
type ConnectionKind string

const (
	KindDrive    ConnectionKind = "drive"
	KindCalendar ConnectionKind = "calendar"
)

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusSyncing      ConnectionStatus = "syncing"
	StatusError        ConnectionStatus = "error"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// SyncDirection controls which way a calendar connection moves events.
type SyncDirection string

const (
	DirectionPull          SyncDirection = "pull"
	DirectionPush          SyncDirection = "push"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// Connection is an authorized link to one Drive folder or one Calendar.
type Connection struct {
	ID              string
	UserID          string
	Kind            ConnectionKind
	AccountEmail    *string
	AccessTokenEnc  string
	RefreshTokenEnc *string
	TokenExpiresAt  *time.Time
	FolderID        *string
	CalendarID      *string
	TimeZone        *string
	Direction       SyncDirection
	// SyncInterval of zero means manual syncing only.
	SyncInterval   time.Duration
	Status         ConnectionStatus
	TotalItems     int
	SucceededItems int
	FailedItems    int
	LastError      *string
	SyncCursor     *string
	LastSyncAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PassOutcome is what a finished sync pass writes back to its connection.
type PassOutcome struct {
	Status     ConnectionStatus
	Total      int
	Succeeded  int
	Failed     int
	LastError  *string
	SyncCursor *string
	FinishedAt time.Time
}

// MirrorStatus is the sync state of one remote item.
type MirrorStatus string

const (
	MirrorCompleted MirrorStatus = "completed"
	MirrorFailed    MirrorStatus = "failed"
	MirrorPending   MirrorStatus = "pending"
)

// MirrorRecord tracks one remote item for one connection.
type MirrorRecord struct {
	ID               string
	ConnectionID     string
	RemoteID         string
	RemoteName       string
	MimeType         string
	SizeBytes        int64
	RemoteModifiedAt *time.Time
	Status           MirrorStatus
	RetryCount       int
	ErrorMessage     *string
	// LocalID references the Document or Event materialized from the item.
	LocalID   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a stored file owned by a user.
type Document struct {
	ID         string
	UserID     string
	Title      string
	FileName   string
	MimeType   string
	SizeBytes  int64
	StorageKey string
	Checksum   string
	Source     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Event is a calendar entry (deadline, hearing, renewal date, ...).
type Event struct {
	ID             string
	UserID         string
	Title          string
	Description    string
	Location       string
	StartsAt       time.Time
	EndsAt         time.Time
	AllDay         bool
	TimeZone       string
	Source         string
	DocumentID     *string
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PushCandidate is a local event that needs writing to a remote calendar.
// RemoteID is nil when the event has never been pushed to that connection.
type PushCandidate struct {
	Event    Event
	RemoteID *string
}

// Severity ranks notifications.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo, SeveritySuccess:
		return true
	}
	return false
}

// NotificationAction is a button offered alongside a notification.
type NotificationAction struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// Notification is an alert shown to a user.
type Notification struct {
	ID         string
	UserID     string
	Severity   Severity
	Title      string
	Message    string
	DocumentID *string
	EventID    *string
	TaskID     *string
	Read       bool
	Actions    []NotificationAction
	CreatedAt  time.Time
	ReadAt     *time.Time
}
