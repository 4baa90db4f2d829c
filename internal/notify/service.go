package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jw6ventures/casefile/internal/metrics"
	"github.com/jw6ventures/casefile/internal/realtime"
	"github.com/jw6ventures/casefile/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

var ErrInvalid = errors.New("invalid notification")

// Emitter pushes an event to a user's live clients. realtime.Hub satisfies it.
type Emitter interface {
	Emit(userID, event string, payload any)
}

// Input describes a notification to create.
type Input struct {
	UserID     string
	Severity   store.Severity
	Title      string
	Message    string
	DocumentID *string
	EventID    *string
	TaskID     *string
	Actions    []store.NotificationAction
}

// View is the JSON shape of a notification on the wire.
type View struct {
	ID         string                     `json:"id"`
	Severity   store.Severity             `json:"severity"`
	Title      string                     `json:"title"`
	Message    string                     `json:"message"`
	DocumentID *string                    `json:"documentId,omitempty"`
	EventID    *string                    `json:"eventId,omitempty"`
	TaskID     *string                    `json:"taskId,omitempty"`
	Read       bool                       `json:"read"`
	Actions    []store.NotificationAction `json:"actions,omitempty"`
	CreatedAt  time.Time                  `json:"createdAt"`
	ReadAt     *time.Time                 `json:"readAt,omitempty"`
}

func ToView(n store.Notification) View {
	return View{
		ID:         n.ID,
		Severity:   n.Severity,
		Title:      n.Title,
		Message:    n.Message,
		DocumentID: n.DocumentID,
		EventID:    n.EventID,
		TaskID:     n.TaskID,
		Read:       n.Read,
		Actions:    n.Actions,
		CreatedAt:  n.CreatedAt,
		ReadAt:     n.ReadAt,
	}
}

// Service owns a user's notifications. Every successful mutation is
// followed by an emit on the user's channel; reads have no side effects.
type Service struct {
	repo    store.NotificationRepository
	emitter Emitter
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo store.NotificationRepository, emitter Emitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, emitter: emitter, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in Input) (*store.Notification, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if in.Severity == "" {
		in.Severity = store.SeverityInfo
	}
	if !in.Severity.Valid() {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalid, in.Severity)
	}

	n, err := s.repo.Create(ctx, store.Notification{
		UserID:     in.UserID,
		Severity:   in.Severity,
		Title:      in.Title,
		Message:    in.Message,
		DocumentID: in.DocumentID,
		EventID:    in.EventID,
		TaskID:     in.TaskID,
		Actions:    in.Actions,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	metrics.IncNotification(string(n.Severity))
	s.emit(n.UserID, realtime.EventNotificationNew, ToView(*n))
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id, s.now()); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	s.emit(userID, realtime.EventNotificationRead, map[string]any{"id": id})
	return nil
}

// MarkAllRead returns how many notifications changed state.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	s.emit(userID, realtime.EventNotificationRead, map[string]any{"all": true, "count": n})
	return n, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	s.emit(userID, realtime.EventNotificationDeleted, map[string]any{"id": id})
	return nil
}

// List returns newest first. limit <= 0 means DefaultLimit; it is capped at MaxLimit.
func (s *Service) List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]store.Notification, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return s.repo.List(ctx, userID, limit, unreadOnly)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *Service) emit(userID, event string, payload any) {
	if s.emitter == nil {
		s.logger.Debug("no emitter configured, dropping event", zap.String("user_id", userID), zap.String("event", event))
		return
	}
	s.emitter.Emit(userID, event, payload)
}
