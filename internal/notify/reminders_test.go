package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jw6ventures/casefile/internal/store"
)

type memReminderEvents struct {
	events   []store.Event
	reminded map[string]time.Time
	from, to time.Time
}

func (m *memReminderEvents) ListDueReminders(_ context.Context, from, to time.Time) ([]store.Event, error) {
	m.from, m.to = from, to
	var out []store.Event
	for _, ev := range m.events {
		if _, done := m.reminded[ev.ID]; done {
			continue
		}
		if !ev.StartsAt.Before(from) && !ev.StartsAt.After(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memReminderEvents) MarkReminded(_ context.Context, id string, at time.Time) error {
	m.reminded[id] = at
	return nil
}

func TestRemindersRun(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	events := &memReminderEvents{
		reminded: map[string]time.Time{},
		events: []store.Event{
			{ID: "e1", UserID: "u1", Title: "Hearing", Location: "Court 4", StartsAt: now.Add(3 * time.Hour), TimeZone: "Europe/Riga"},
			{ID: "e2", UserID: "u1", Title: "Far away", StartsAt: now.Add(72 * time.Hour)},
			{ID: "e3", UserID: "u2", Title: "Renewal", StartsAt: now.Add(20 * time.Hour), AllDay: true},
		},
	}
	repo := newMemNotifications()
	em := &recordingEmitter{}
	svc := NewService(repo, em, nil)
	r := NewReminders(events, svc, 24*time.Hour, zaptest.NewLogger(t))
	r.now = func() time.Time { return now }

	sent, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Equal(t, now, events.from)
	require.Equal(t, now.Add(24*time.Hour), events.to)
	require.Contains(t, events.reminded, "e1")
	require.Contains(t, events.reminded, "e3")

	list, err := svc.List(context.Background(), "u1", 10, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, store.SeverityWarning, list[0].Severity)
	require.Equal(t, "Upcoming: Hearing", list[0].Title)
	require.Contains(t, list[0].Message, "Court 4")
	require.Contains(t, list[0].Message, "in 3h0m0s")
	require.Equal(t, "e1", *list[0].EventID)

	sent, err = r.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Len(t, em.events, 2)
}
