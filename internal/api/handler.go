// Package api serves the JSON endpoints behind bearer authentication.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jw6ventures/casefile/internal/auth"
	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
	"github.com/jw6ventures/casefile/internal/notify"
	"github.com/jw6ventures/casefile/internal/oauth"
	"github.com/jw6ventures/casefile/internal/store"
	"github.com/jw6ventures/casefile/internal/syncer"
)

const maxBodyBytes = 1 << 20

type ConnectionStore interface {
	GetByID(ctx context.Context, id string) (*store.Connection, error)
	ListByUser(ctx context.Context, userID string) ([]store.Connection, error)
	Disconnect(ctx context.Context, userID, id string) error
}

type DocumentStore interface {
	GetByID(ctx context.Context, userID, id string) (*store.Document, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]store.Document, error)
}

type EventStore interface {
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]store.Event, error)
}

type Notifications interface {
	Create(ctx context.Context, in notify.Input) (*store.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID string, limit int, unreadOnly bool) ([]store.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type Syncer interface {
	RunPass(ctx context.Context, connectionID string, onProgress syncer.ProgressFunc) (*syncer.Result, error)
	LastResult(connectionID string) (*syncer.Result, bool)
}

type Connector interface {
	AuthURL(p oauth.PendingConnection) (string, error)
	Complete(ctx context.Context, code, state string) (*store.Connection, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Deps are the collaborators of Handler.
type Deps struct {
	Connections   ConnectionStore
	Documents     DocumentStore
	Events        EventStore
	Notifications Notifications
	Syncer        Syncer
	Connector     Connector
	Presigner     Presigner
	// CallbackRedirect is where the browser lands after a connection is
	// authorized. Empty answers the callback with JSON instead.
	CallbackRedirect string
	DownloadTTL      time.Duration
}

// Handler serves the REST API.
type Handler struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	// Background sync passes outlive their request but not the server.
	baseCtx context.Context
	passes  sync.WaitGroup
}

func NewHandler(ctx context.Context, deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.DownloadTTL <= 0 {
		deps.DownloadTTL = 5 * time.Minute
	}
	return &Handler{deps: deps, logger: logger, now: time.Now, baseCtx: ctx}
}

// Wait blocks until background sync passes started by the handler return.
func (h *Handler) Wait() {
	h.passes.Wait()
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		httperrors.Unauthorized(w, r, "authentication required")
		return "", false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid JSON body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return v
}
