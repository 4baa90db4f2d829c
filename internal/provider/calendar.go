package provider

import (
	"context"
	"time"

	"google.golang.org/api/calendar/v3"
)

const dateLayout = "2006-01-02"

// CalendarClient reads and writes events of one Google calendar.
type CalendarClient struct {
	svc *calendar.Service
	now func() time.Time
}

func NewCalendarClient(svc *calendar.Service) *CalendarClient {
	return &CalendarClient{svc: svc}
}

func (c *CalendarClient) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// ListItems lists single (expanded) events starting from q.TimeMin, ordered
// by start time. Only future events are listed when TimeMin is zero.
func (c *CalendarClient) ListItems(ctx context.Context, q Query) (*Page, error) {
	calendarID := q.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	timeMin := q.TimeMin
	if timeMin.IsZero() {
		timeMin = c.clock()
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	call := c.svc.Events.List(calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(timeMin.Format(time.RFC3339)).
		MaxResults(pageSize).
		Context(ctx)
	if q.Cursor != "" {
		call = call.PageToken(q.Cursor)
	}

	res, err := call.Do()
	if err != nil {
		return nil, wrapErr("calendar list", true, err)
	}

	page := &Page{NextCursor: res.NextPageToken, Items: make([]Item, 0, len(res.Items))}
	for _, ev := range res.Items {
		if ev.Status == "cancelled" {
			continue
		}
		page.Items = append(page.Items, Item{
			ID:         ev.Id,
			Name:       ev.Summary,
			MimeType:   "text/calendar",
			CreatedAt:  parseTime(ev.Created),
			ModifiedAt: parseTime(ev.Updated),
		})
	}
	return page, nil
}

func (c *CalendarClient) GetEvent(ctx context.Context, calendarID, eventID string) (*EventBody, error) {
	ev, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("calendar get", false, err)
	}
	return fromGoogle(ev), nil
}

func (c *CalendarClient) InsertEvent(ctx context.Context, calendarID string, body EventBody) (*EventBody, error) {
	ev, err := c.svc.Events.Insert(calendarID, toGoogle(body)).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("calendar insert", false, err)
	}
	return fromGoogle(ev), nil
}

func (c *CalendarClient) UpdateEvent(ctx context.Context, calendarID, eventID string, body EventBody) (*EventBody, error) {
	ev, err := c.svc.Events.Update(calendarID, eventID, toGoogle(body)).Context(ctx).Do()
	if err != nil {
		return nil, wrapErr("calendar update", false, err)
	}
	return fromGoogle(ev), nil
}

func toGoogle(body EventBody) *calendar.Event {
	ev := &calendar.Event{
		Summary:     body.Title,
		Description: body.Description,
		Location:    body.Location,
	}
	if body.AllDay {
		ev.Start = &calendar.EventDateTime{Date: body.Start.Format(dateLayout)}
		ev.End = &calendar.EventDateTime{Date: body.End.Format(dateLayout)}
		return ev
	}
	ev.Start = &calendar.EventDateTime{DateTime: body.Start.Format(time.RFC3339), TimeZone: body.TimeZone}
	ev.End = &calendar.EventDateTime{DateTime: body.End.Format(time.RFC3339), TimeZone: body.TimeZone}
	return ev
}

// fromGoogle converts an API event. All-day end dates stay exclusive, as
// Google sends them.
func fromGoogle(ev *calendar.Event) *EventBody {
	body := &EventBody{
		ID:          ev.Id,
		Title:       ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Updated:     parseTime(ev.Updated),
	}
	if ev.Start != nil {
		if ev.Start.DateTime != "" {
			body.Start = parseTime(ev.Start.DateTime)
			body.TimeZone = ev.Start.TimeZone
		} else if ev.Start.Date != "" {
			body.Start, _ = time.Parse(dateLayout, ev.Start.Date)
			body.AllDay = true
		}
	}
	if ev.End != nil {
		if ev.End.DateTime != "" {
			body.End = parseTime(ev.End.DateTime)
		} else if ev.End.Date != "" {
			body.End, _ = time.Parse(dateLayout, ev.End.Date)
		}
	}
	return body
}
