// Package ical renders a user's events as an RFC 5545 calendar feed.
package ical

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jw6ventures/casefile/internal/store"
)

const maxLineOctets = 75

// BuildCalendar renders events as a VCALENDAR. now stamps DTSTAMP.
func BuildCalendar(name string, events []store.Event, now time.Time) string {
	var lines []string
	lines = append(lines,
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Casefile//Events//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
	)
	if name = sanitizeText(name); name != "" {
		lines = append(lines, "X-WR-CALNAME:"+EscapeValue(name))
	}
	stamp := now.UTC().Format("20060102T150405Z")
	for _, ev := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, eventLines(ev, stamp)...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR")

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(fold(line))
		sb.WriteString("\r\n")
	}
	return sb.String()
}

func eventLines(ev store.Event, stamp string) []string {
	lines := []string{
		fmt.Sprintf("UID:%s@casefile", ev.ID),
		"DTSTAMP:" + stamp,
	}
	end := ev.EndsAt
	if ev.AllDay && !end.After(ev.StartsAt) {
		// DATE ends are exclusive.
		end = ev.StartsAt.AddDate(0, 0, 1)
	}
	lines = append(lines, dateLine("DTSTART", ev.StartsAt, ev.AllDay, ev.TimeZone))
	lines = append(lines, dateLine("DTEND", end, ev.AllDay, ev.TimeZone))
	lines = append(lines, "SUMMARY:"+EscapeValue(sanitizeText(ev.Title)))
	if loc := sanitizeText(ev.Location); loc != "" {
		lines = append(lines, "LOCATION:"+EscapeValue(loc))
	}
	if desc := sanitizeText(ev.Description); desc != "" {
		lines = append(lines, "DESCRIPTION:"+EscapeValue(desc))
	}
	if ev.Source != "" && ev.Source != "local" {
		lines = append(lines, "CATEGORIES:"+EscapeValue(ev.Source))
	}
	if !ev.UpdatedAt.IsZero() {
		lines = append(lines, "LAST-MODIFIED:"+ev.UpdatedAt.UTC().Format("20060102T150405Z"))
	}
	return lines
}

func dateLine(prop string, t time.Time, allDay bool, tzid string) string {
	if allDay {
		return fmt.Sprintf("%s;VALUE=DATE:%s", prop, t.Format("20060102"))
	}
	if tzid != "" && tzid != "UTC" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			return fmt.Sprintf("%s;TZID=%s:%s", prop, tzid, t.In(loc).Format("20060102T150405"))
		}
	}
	return fmt.Sprintf("%s:%s", prop, t.UTC().Format("20060102T150405Z"))
}

// EscapeValue escapes special characters for iCalendar TEXT values.
func EscapeValue(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// sanitizeText drops control characters other than newline and tab.
func sanitizeText(value string) string {
	value = strings.TrimSpace(value)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, value)
}

// fold splits a content line into 75-octet chunks without breaking a
// UTF-8 sequence.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}
	var sb strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		sb.WriteString(line[:cut])
		sb.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines spend one octet on the leading space.
		limit = maxLineOctets - 1
	}
	sb.WriteString(line)
	return sb.String()
}

// UnfoldLines reverses fold and splits the feed into content lines.
func UnfoldLines(feed string) []string {
	feed = strings.ReplaceAll(feed, "\r\n", "\n")
	feed = strings.ReplaceAll(feed, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(feed, "\n") {
		if len(lines) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			lines[len(lines)-1] += line[1:]
			continue
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
