package ical

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/casefile/internal/store"
)

func TestBuildCalendar(t *testing.T) {
	start := time.Date(2026, 4, 2, 7, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	feed := BuildCalendar("Deadlines", []store.Event{
		{
			ID: "ev-1", Title: "Hearing; room 4, floor 2", Location: "Court\nAnnex",
			StartsAt: start, EndsAt: start.Add(time.Hour), TimeZone: "Europe/Riga", Source: "google_calendar",
		},
		{
			ID: "ev-2", Title: "Policy renewal", AllDay: true,
			StartsAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), EndsAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			Source: "local",
		},
		{ID: "ev-3", Title: "Bell\x07", StartsAt: start, EndsAt: start, TimeZone: "UTC"},
	}, now)

	require.True(t, strings.HasSuffix(feed, "END:VCALENDAR\r\n"))
	lines := UnfoldLines(feed)
	require.Equal(t, "BEGIN:VCALENDAR", lines[0])
	require.Contains(t, lines, "X-WR-CALNAME:Deadlines")
	require.Contains(t, lines, "UID:ev-1@casefile")
	require.Contains(t, lines, "DTSTAMP:20260301T120000Z")
	require.Contains(t, lines, "DTSTART;TZID=Europe/Riga:20260402T100000")
	require.Contains(t, lines, "DTEND;TZID=Europe/Riga:20260402T110000")
	require.Contains(t, lines, `SUMMARY:Hearing\; room 4\, floor 2`)
	require.Contains(t, lines, `LOCATION:Court\nAnnex`)
	require.Contains(t, lines, "CATEGORIES:google_calendar")
	require.Contains(t, lines, "DTSTART;VALUE=DATE:20260501")
	require.Contains(t, lines, "DTEND;VALUE=DATE:20260502")
	require.Contains(t, lines, "DTSTART:20260402T070000Z")
	require.Contains(t, lines, "SUMMARY:Bell")
	require.Equal(t, 3, strings.Count(feed, "BEGIN:VEVENT"))
}

func TestFoldKeepsLinesShortAndRunesWhole(t *testing.T) {
	long := "DESCRIPTION:" + strings.Repeat("Līgums ", 40)
	folded := fold(long)
	for _, part := range strings.Split(folded, "\r\n") {
		require.LessOrEqual(t, len(part), maxLineOctets)
		require.True(t, strings.ToValidUTF8(part, "?") == part, "split inside a rune: %q", part)
	}
	require.Equal(t, []string{long}, UnfoldLines(folded))
}

func TestEscapeValue(t *testing.T) {
	require.Equal(t, `a\\b\;c\,d\ne`, EscapeValue("a\\b;c,d\r\ne"))
}
