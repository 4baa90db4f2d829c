package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jw6ventures/casefile/internal/provider"
	"github.com/jw6ventures/casefile/internal/realtime"
	"github.com/jw6ventures/casefile/internal/store"
)

const eventMimeType = "application/vnd.google-apps.event"

func calendarID(conn *store.Connection) string {
	if id := deref(conn.CalendarID); id != "" {
		return id
	}
	return "primary"
}

func (p *pass) pullCalendar(ctx context.Context, api provider.CalendarAPI) (*string, error) {
	calID := calendarID(p.conn)
	page, err := p.list(func(cursor string) (*provider.Page, error) {
		return api.ListItems(ctx, provider.Query{
			CalendarID: calID,
			Cursor:     cursor,
			PageSize:   p.engine.opts.PageSize,
		})
	})
	if err != nil {
		return p.conn.SyncCursor, err
	}

	for i, item := range page.Items {
		p.pullEvent(ctx, api, calID, item)
		p.report("pull", i+1, len(page.Items), item.Name)
	}
	return cursorOf(page.NextCursor), nil
}

func (p *pass) pullEvent(ctx context.Context, api provider.CalendarAPI, calID string, item provider.Item) {
	if _, ok := p.heldBack[item.ID]; ok {
		// A local edit of this event failed to push; pulling now would
		// overwrite it with the remote copy.
		p.log.Debug("pull held back after failed push", zap.String("remote_id", item.ID))
		return
	}
	mirror, err := p.lookup(ctx, item.ID)
	if err != nil {
		p.recordFailure(item.ID, item.Name, err)
		return
	}
	if p.engine.unchanged(mirror, item.ModifiedAt) {
		p.skipped(item)
		return
	}

	eventID, err := p.syncEvent(ctx, api, calID, item, mirror)
	if err != nil {
		p.failed(ctx, item, mirror, nil, err)
		return
	}
	p.synced(ctx, item, mirror, eventID)
}

func (p *pass) syncEvent(ctx context.Context, api provider.CalendarAPI, calID string, item provider.Item, mirror *store.MirrorRecord) (string, error) {
	body, err := api.GetEvent(ctx, calID, item.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrItemTransfer, err)
	}
	if err := validateEventBody(*body); err != nil {
		return "", err
	}

	tz := body.TimeZone
	if tz == "" {
		tz = deref(p.conn.TimeZone)
	}
	if tz == "" {
		tz = "UTC"
	}
	ev := store.Event{
		UserID:      p.conn.UserID,
		Title:       body.Title,
		Description: body.Description,
		Location:    body.Location,
		StartsAt:    body.Start,
		EndsAt:      body.End,
		AllDay:      body.AllDay,
		TimeZone:    tz,
		Source:      SourceCalendar,
	}

	events := p.engine.deps.Events
	var saved *store.Event
	if mirror != nil && mirror.LocalID != nil {
		ev.ID = *mirror.LocalID
		saved, err = events.Update(ctx, ev)
		if errors.Is(err, store.ErrNotFound) {
			saved, err = events.Create(ctx, ev)
		}
	} else {
		saved, err = events.Create(ctx, ev)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrItemPersistence, err)
	}

	p.engine.emit(p.conn.UserID, realtime.EventEventUpdated, map[string]any{
		"id":       saved.ID,
		"title":    saved.Title,
		"startsAt": saved.StartsAt,
	})
	return saved.ID, nil
}

// pushCalendar writes local events that are new or changed since their
// last push to the remote calendar.
func (p *pass) pushCalendar(ctx context.Context, api provider.CalendarAPI) error {
	candidates, err := p.engine.deps.Events.ListForPush(ctx, p.conn.UserID, p.conn.ID)
	if err != nil {
		return fmt.Errorf("list events to push: %w", err)
	}

	calID := calendarID(p.conn)
	for i, c := range candidates {
		p.pushEvent(ctx, api, calID, c)
		p.report("push", i+1, len(candidates), c.Event.Title)
	}
	return nil
}

func (p *pass) pushEvent(ctx context.Context, api provider.CalendarAPI, calID string, c store.PushCandidate) {
	ev := c.Event
	body := provider.EventBody{
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.StartsAt,
		End:         ev.EndsAt,
		AllDay:      ev.AllDay,
		TimeZone:    ev.TimeZone,
	}

	// The mirror is left as it was: the local event stays newer than it,
	// so the edit is offered again next pass.
	fail := func(cause error) {
		if c.RemoteID == nil {
			p.recordFailure(ev.ID, ev.Title, cause)
			return
		}
		p.heldBack[*c.RemoteID] = struct{}{}
		p.recordFailure(*c.RemoteID, ev.Title, cause)
	}

	if err := validateEventBody(body); err != nil {
		fail(err)
		return
	}

	var out *provider.EventBody
	var err error
	if c.RemoteID == nil {
		out, err = api.InsertEvent(ctx, calID, body)
	} else {
		out, err = api.UpdateEvent(ctx, calID, *c.RemoteID, body)
	}
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrItemTransfer, err))
		return
	}

	item := provider.Item{ID: out.ID, Name: out.Title, MimeType: eventMimeType, ModifiedAt: out.Updated}
	p.synced(ctx, item, nil, ev.ID)
}
