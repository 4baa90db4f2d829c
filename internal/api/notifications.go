package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
	"github.com/jw6ventures/casefile/internal/notify"
	"github.com/jw6ventures/casefile/internal/store"
)

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	list, err := h.deps.Notifications.List(r.Context(), userID, queryInt(r, "limit", notify.DefaultLimit), queryBool(r, "unread"))
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to list notifications")
		return
	}
	views := make([]notify.View, 0, len(list))
	for _, n := range list {
		views = append(views, notify.ToView(n))
	}
	writeJSON(w, r, http.StatusOK, views)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	count, err := h.deps.Notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to count notifications")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"count": count})
}

type createNotificationRequest struct {
	Severity   store.Severity             `json:"severity"`
	Title      string                     `json:"title"`
	Message    string                     `json:"message"`
	DocumentID *string                    `json:"documentId"`
	EventID    *string                    `json:"eventId"`
	TaskID     *string                    `json:"taskId"`
	Actions    []store.NotificationAction `json:"actions"`
}

func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req createNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.deps.Notifications.Create(r.Context(), notify.Input{
		UserID:     userID,
		Severity:   req.Severity,
		Title:      req.Title,
		Message:    req.Message,
		DocumentID: req.DocumentID,
		EventID:    req.EventID,
		TaskID:     req.TaskID,
		Actions:    req.Actions,
	})
	if errors.Is(err, notify.ErrInvalid) {
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to create notification")
		return
	}
	writeJSON(w, r, http.StatusCreated, notify.ToView(*n))
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	err := h.deps.Notifications.MarkRead(r.Context(), userID, chi.URLParam(r, "id"))
	h.noContent(w, r, err, "failed to mark notification read")
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	n, err := h.deps.Notifications.MarkAllRead(r.Context(), userID)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to mark notifications read")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	err := h.deps.Notifications.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	h.noContent(w, r, err, "failed to delete notification")
}

func (h *Handler) noContent(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httperrors.NotFound(w, r, "notification not found")
	case err != nil:
		httperrors.InternalError(w, r, err, msg)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
