package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jw6ventures/casefile/internal/store"
)

// ReminderEvents is the slice of the event repository reminders need.
type ReminderEvents interface {
	ListDueReminders(ctx context.Context, from, to time.Time) ([]store.Event, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

// Reminders raises a warning for every event that starts within Lead and
// has not been reminded yet.
type Reminders struct {
	events  ReminderEvents
	service *Service
	lead    time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewReminders(events ReminderEvents, service *Service, lead time.Duration, logger *zap.Logger) *Reminders {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reminders{events: events, service: service, lead: lead, logger: logger, now: time.Now}
}

// Run sends due reminders and returns how many were sent. A failure on one
// event is logged and does not stop the others.
func (r *Reminders) Run(ctx context.Context) (int, error) {
	now := r.now()
	due, err := r.events.ListDueReminders(ctx, now, now.Add(r.lead))
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, ev := range due {
		eventID := ev.ID
		_, err := r.service.Create(ctx, Input{
			UserID:   ev.UserID,
			Severity: store.SeverityWarning,
			Title:    "Upcoming: " + ev.Title,
			Message:  reminderMessage(ev, now),
			EventID:  &eventID,
			Actions:  []store.NotificationAction{{Label: "View event", Target: "/events/" + ev.ID}},
		})
		if err != nil {
			r.logger.Warn("create reminder failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		if err := r.events.MarkReminded(ctx, ev.ID, now); err != nil {
			r.logger.Warn("mark reminded failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

func reminderMessage(ev store.Event, now time.Time) string {
	loc := time.UTC
	if ev.TimeZone != "" {
		if l, err := time.LoadLocation(ev.TimeZone); err == nil {
			loc = l
		}
	}
	when := ev.StartsAt.In(loc).Format("Mon Jan 2 15:04 MST")
	if ev.AllDay {
		when = ev.StartsAt.In(loc).Format("Mon Jan 2")
	}
	left := ev.StartsAt.Sub(now).Round(time.Minute)
	msg := fmt.Sprintf("%s starts %s (in %s)", ev.Title, when, left)
	if ev.Location != "" {
		msg += " at " + ev.Location
	}
	return msg
}
