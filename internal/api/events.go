package api

import (
	"net/http"
	"time"

	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
	"github.com/jw6ventures/casefile/internal/ical"
	"github.com/jw6ventures/casefile/internal/store"
)

const maxEventWindow = 366 * 24 * time.Hour

type EventView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartsAt    time.Time `json:"startsAt"`
	EndsAt      time.Time `json:"endsAt"`
	AllDay      bool      `json:"allDay"`
	TimeZone    string    `json:"timeZone,omitempty"`
	Source      string    `json:"source"`
	DocumentID  *string   `json:"documentId,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// eventWindow reads ?from= and ?to= (RFC 3339). The default window runs
// from 30 days ago to 90 days ahead.
func (h *Handler) eventWindow(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := h.now().UTC()
	from, to := now.AddDate(0, 0, -30), now.AddDate(0, 0, 90)
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httperrors.BadRequestError(w, r, err, "from must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httperrors.BadRequestError(w, r, err, "to must be an RFC 3339 timestamp")
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	if !to.After(from) {
		httperrors.Write(w, r, http.StatusBadRequest, "to must be after from")
		return time.Time{}, time.Time{}, false
	}
	if to.Sub(from) > maxEventWindow {
		httperrors.Write(w, r, http.StatusBadRequest, "window must not exceed 366 days")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func (h *Handler) loadEvents(w http.ResponseWriter, r *http.Request) ([]store.Event, bool) {
	userID, ok := h.userID(w, r)
	if !ok {
		return nil, false
	}
	from, to, ok := h.eventWindow(w, r)
	if !ok {
		return nil, false
	}
	events, err := h.deps.Events.ListByUser(r.Context(), userID, from, to)
	if err != nil {
		httperrors.InternalError(w, r, err, "failed to list events")
		return nil, false
	}
	return events, true
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := h.loadEvents(w, r)
	if !ok {
		return
	}
	views := make([]EventView, 0, len(events))
	for _, e := range events {
		views = append(views, EventView{
			ID:          e.ID,
			Title:       e.Title,
			Description: e.Description,
			Location:    e.Location,
			StartsAt:    e.StartsAt,
			EndsAt:      e.EndsAt,
			AllDay:      e.AllDay,
			TimeZone:    e.TimeZone,
			Source:      e.Source,
			DocumentID:  e.DocumentID,
			UpdatedAt:   e.UpdatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, views)
}

// ExportEvents serves the same window as an iCalendar feed.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	events, ok := h.loadEvents(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="casefile.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ical.BuildCalendar("Casefile", events, h.now())))
}
