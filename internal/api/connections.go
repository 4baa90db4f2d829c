package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
	"github.com/jw6ventures/casefile/internal/oauth"
	"github.com/jw6ventures/casefile/internal/store"
	"github.com/jw6ventures/casefile/internal/syncer"
)

// ConnectionView is the client representation of a connection. Tokens
// never leave the server.
type ConnectionView struct {
	ID                  string                 `json:"id"`
	Kind                store.ConnectionKind   `json:"kind"`
	AccountEmail        *string                `json:"accountEmail,omitempty"`
	FolderID            *string                `json:"folderId,omitempty"`
	CalendarID          *string                `json:"calendarId,omitempty"`
	TimeZone            *string                `json:"timeZone,omitempty"`
	Direction           store.SyncDirection    `json:"direction"`
	SyncIntervalSeconds int                    `json:"syncIntervalSeconds"`
	Status              store.ConnectionStatus `json:"status"`
	TotalItems          int                    `json:"totalItems"`
	SucceededItems      int                    `json:"succeededItems"`
	FailedItems         int                    `json:"failedItems"`
	LastError           *string                `json:"lastError,omitempty"`
	LastSyncAt          *time.Time             `json:"lastSyncAt,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
}

func toConnectionView(c store.Connection) ConnectionView {
	return ConnectionView{
		ID:                  c.ID,
		Kind:                c.Kind,
		AccountEmail:        c.AccountEmail,
		FolderID:            c.FolderID,
		CalendarID:          c.CalendarID,
		TimeZone:            c.TimeZone,
		Direction:           c.Direction,
		SyncIntervalSeconds: int(c.SyncInterval / time.Second),
		Status:              c.Status,
		TotalItems:          c.TotalItems,
		SucceededItems:      c.SucceededItems,
		FailedItems:         c.FailedItems,
		LastError:           c.LastError,
		LastSyncAt:          c.LastSyncAt,
		CreatedAt:           c.CreatedAt,
	}
}

func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	conns, err := h.deps.Connections.ListByUser(r.Context(), userID)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to list connections")
		return
	}
	views := make([]ConnectionView, 0, len(conns))
	for _, c := range conns {
		views = append(views, toConnectionView(c))
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, toConnectionView(*conn))
}

// ownedConnection loads the {id} connection, answering 404 for ids that do
// not exist or belong to another user.
func (h *Handler) ownedConnection(w http.ResponseWriter, r *http.Request) (*store.Connection, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return nil, false
	}
	conn, err := h.deps.Connections.GetByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) || (err == nil && conn.UserID != userID) {
		httperrors.NotFound(w, r, "connection not found")
		return nil, false
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to load connection")
		return nil, false
	}
	return conn, true
}

// TriggerSync starts a pass in the background and answers 202. With
// ?wait=true the pass runs inside the request and its result is returned.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}
	if conn.Status == store.StatusDisconnected {
		httperrors.Write(w, r, http.StatusConflict, "connection is disconnected")
		return
	}

	if queryBool(r, "wait") {
		res, err := h.deps.Syncer.RunPass(r.Context(), conn.ID, nil)
		switch {
		case errors.Is(err, syncer.ErrConnectionDisabled):
			httperrors.Write(w, r, http.StatusConflict, "connection is disconnected")
		case res != nil:
			// Pass-fatal errors are reported inside the result.
			writeJSON(w, r, http.StatusOK, res)
		default:
			httperrors.InternalError(w, r, err, "sync pass failed")
		}
		return
	}

	h.passes.Add(1)
	go func(id string) {
		defer h.passes.Done()
		if _, err := h.deps.Syncer.RunPass(h.baseCtx, id, nil); err != nil {
			h.logger.Warn("background sync pass failed", zap.String("connection_id", id), zap.Error(err))
		}
	}(conn.ID)
	writeJSON(w, r, http.StatusAccepted, map[string]string{"connectionId": conn.ID, "status": "started"})
}

func (h *Handler) LastSyncResult(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.ownedConnection(w, r)
	if !ok {
		return
	}
	res, found := h.deps.Syncer.LastResult(conn.ID)
	if !found {
		httperrors.NotFound(w, r, "no sync pass has run for this connection")
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *Handler) DisconnectConnection(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.deps.Connections.Disconnect(r.Context(), userID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httperrors.NotFound(w, r, "connection not found")
			return
		}
		httperrors.InternalError(w, r, err, "failed to disconnect")
		return
	}
	h.logger.Info("connection disconnected", zap.String("connection_id", id), zap.String("user_id", userID))
	w.WriteHeader(http.StatusNoContent)
}

type startOAuthRequest struct {
	Kind                store.ConnectionKind `json:"kind"`
	FolderID            string               `json:"folderId"`
	CalendarID          string               `json:"calendarId"`
	TimeZone            string               `json:"timeZone"`
	Direction           store.SyncDirection  `json:"direction"`
	SyncIntervalSeconds int                  `json:"syncIntervalSeconds"`
}

// StartOAuth answers with the consent URL the client should open.
func (h *Handler) StartOAuth(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req startOAuthRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TimeZone != "" {
		if _, err := time.LoadLocation(req.TimeZone); err != nil {
			httperrors.BadRequestError(w, r, err, "unknown time zone")
			return
		}
	}
	authURL, err := h.deps.Connector.AuthURL(oauth.PendingConnection{
		UserID:              userID,
		Kind:                req.Kind,
		FolderID:            req.FolderID,
		CalendarID:          req.CalendarID,
		TimeZone:            req.TimeZone,
		Direction:           req.Direction,
		SyncIntervalSeconds: req.SyncIntervalSeconds,
	})
	if err != nil {
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"authUrl": authURL})
}

// OAuthCallback completes the provider handshake. The signed state carries
// the user, so the route needs no bearer token.
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		httperrors.Write(w, r, http.StatusBadRequest, "authorization was not granted: "+e)
		return
	}
	conn, err := h.deps.Connector.Complete(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			httperrors.BadRequestError(w, r, err, "invalid or expired state")
			return
		}
		if errors.Is(err, oauth.ErrTokenMissing) {
			httperrors.BadRequestError(w, r, err, "provider returned no access token")
			return
		}
		httperrors.InternalError(w, r, err, "failed to complete authorization")
		return
	}

	if h.deps.CallbackRedirect != "" {
		target, err := url.Parse(h.deps.CallbackRedirect)
		if err != nil {
			httperrors.InternalError(w, r, err, "invalid callback redirect")
			return
		}
		values := target.Query()
		values.Set("connected", conn.ID)
		target.RawQuery = values.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}
	writeJSON(w, r, http.StatusCreated, toConnectionView(*conn))
}
