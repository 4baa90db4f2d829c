package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jw6ventures/casefile/internal/notify"
	"github.com/jw6ventures/casefile/internal/provider"
	"github.com/jw6ventures/casefile/internal/store"
)

// world is an in-memory stand-in for the database shared by the fakes.
type world struct {
	mu       sync.Mutex
	clock    time.Time
	conns    map[string]*store.Connection
	statuses []store.ConnectionStatus
	mirrors  map[string]*store.MirrorRecord
	docs     map[string]*store.Document
	events   map[string]*store.Event
	seq      int
}

func newWorld(conns ...store.Connection) *world {
	w := &world{
		clock:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		conns:   map[string]*store.Connection{},
		mirrors: map[string]*store.MirrorRecord{},
		docs:    map[string]*store.Document{},
		events:  map[string]*store.Event{},
	}
	for i := range conns {
		c := conns[i]
		w.conns[c.ID] = &c
	}
	return w
}

func (w *world) tick() time.Time {
	w.clock = w.clock.Add(time.Second)
	return w.clock
}

func (w *world) nextID(prefix string) string {
	w.seq++
	return fmt.Sprintf("%s-%d", prefix, w.seq)
}

func (w *world) conn(id string) store.Connection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.conns[id]
}

// disconnect mirrors store.connectionRepo.Disconnect.
func (w *world) disconnect(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.conns[id]
	c.Status = store.StatusDisconnected
	c.AccessTokenEnc = ""
	c.RefreshTokenEnc = nil
}

func (w *world) mirror(connID, remoteID string) *store.MirrorRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.mirrors[connID+"|"+remoteID]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

func (w *world) docCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.docs)
}

// connections

type memConns struct{ *world }

func (c memConns) GetByID(_ context.Context, id string) (*store.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (c memConns) SetStatus(_ context.Context, id string, status store.ConnectionStatus, lastError *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[id]
	if !ok {
		return store.ErrNotFound
	}
	if conn.Status != store.StatusDisconnected {
		conn.Status = status
	}
	conn.LastError = lastError
	c.statuses = append(c.statuses, status)
	return nil
}

func (c memConns) RecordPass(_ context.Context, id string, o store.PassOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[id]
	if !ok {
		return store.ErrNotFound
	}
	if conn.Status != store.StatusDisconnected {
		conn.Status = o.Status
	}
	conn.TotalItems = o.Total
	conn.SucceededItems = o.Succeeded
	conn.FailedItems = o.Failed
	conn.LastError = o.LastError
	conn.SyncCursor = o.SyncCursor
	at := o.FinishedAt
	conn.LastSyncAt = &at
	c.statuses = append(c.statuses, o.Status)
	return nil
}

// mirrors

type memMirrors struct{ *world }

func (m memMirrors) Get(_ context.Context, connectionID, remoteID string) (*store.MirrorRecord, error) {
	rec := m.mirror(connectionID, remoteID)
	if rec == nil {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m memMirrors) Upsert(_ context.Context, rec store.MirrorRecord) (*store.MirrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.ConnectionID + "|" + rec.RemoteID
	now := m.tick()
	if prev, ok := m.mirrors[key]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.ID = m.nextID("mirror")
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.mirrors[key] = &rec
	cp := rec
	return &cp, nil
}

// documents

type memDocs struct {
	*world
	failCreate error
}

func (d *memDocs) Create(_ context.Context, doc store.Document) (*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCreate != nil {
		return nil, d.failCreate
	}
	if doc.ID == "" {
		doc.ID = d.nextID("doc")
	}
	doc.CreatedAt = d.tick()
	doc.UpdatedAt = doc.CreatedAt
	d.docs[doc.ID] = &doc
	cp := doc
	return &cp, nil
}

func (d *memDocs) Update(_ context.Context, doc store.Document) (*store.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.docs[doc.ID]
	if !ok || prev.UserID != doc.UserID {
		return nil, store.ErrNotFound
	}
	doc.CreatedAt = prev.CreatedAt
	doc.UpdatedAt = d.tick()
	d.docs[doc.ID] = &doc
	cp := doc
	return &cp, nil
}

// events

type memEvents struct{ *world }

func (e memEvents) Create(_ context.Context, ev store.Event) (*store.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.ID == "" {
		ev.ID = e.nextID("event")
	}
	if ev.Source == "" {
		ev.Source = "local"
	}
	ev.CreatedAt = e.tick()
	ev.UpdatedAt = ev.CreatedAt
	e.events[ev.ID] = &ev
	cp := ev
	return &cp, nil
}

func (e memEvents) Update(_ context.Context, ev store.Event) (*store.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.events[ev.ID]
	if !ok || prev.UserID != ev.UserID {
		return nil, store.ErrNotFound
	}
	ev.Source = prev.Source
	ev.CreatedAt = prev.CreatedAt
	ev.UpdatedAt = e.tick()
	e.events[ev.ID] = &ev
	cp := ev
	return &cp, nil
}

// ListForPush mirrors the SQL in store.eventRepo.ListForPush.
func (e memEvents) ListForPush(_ context.Context, userID, connectionID string) ([]store.PushCandidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []store.PushCandidate
	for _, ev := range e.events {
		if ev.UserID != userID {
			continue
		}
		var linked *store.MirrorRecord
		for _, m := range e.mirrors {
			if m.ConnectionID == connectionID && m.LocalID != nil && *m.LocalID == ev.ID {
				linked = m
			}
		}
		if ev.Source != "local" && linked == nil {
			continue
		}
		if linked != nil && !ev.UpdatedAt.After(linked.UpdatedAt) &&
			!(linked.Status != store.MirrorCompleted && ev.Source == "local") {
			continue
		}
		c := store.PushCandidate{Event: *ev}
		if linked != nil {
			rid := linked.RemoteID
			c.RemoteID = &rid
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.StartsAt.Before(out[j].Event.StartsAt) })
	return out, nil
}

// tokens

type fakeTokens struct {
	token string
	err   error
	calls atomic.Int32
}

func (f *fakeTokens) EnsureValidAccessToken(context.Context, string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// providers

type fakeProviders struct {
	drive    *fakeDrive
	calendar *fakeCalendar
	tokens   []string
}

func (f *fakeProviders) Drive(_ context.Context, token string) (provider.DriveAPI, error) {
	f.tokens = append(f.tokens, token)
	return f.drive, nil
}

func (f *fakeProviders) Calendar(_ context.Context, token string) (provider.CalendarAPI, error) {
	f.tokens = append(f.tokens, token)
	return f.calendar, nil
}

type fakeDrive struct {
	mu          sync.Mutex
	items       []provider.Item
	content     map[string][]byte
	downloadErr map[string]error
	listErr     error
	nextCursor  string
	rejectOld   string
	cursors     []string
	listCalls   atomic.Int32
	// started/release let a test hold a listing in flight.
	started chan struct{}
	release chan struct{}
}

func (f *fakeDrive) ListItems(_ context.Context, q provider.Query) (*provider.Page, error) {
	f.listCalls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, q.Cursor)
	if f.rejectOld != "" && q.Cursor == f.rejectOld {
		return nil, &provider.ListingError{Op: "drive.files.list", Status: 400, Body: "Invalid page token"}
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	items := append([]provider.Item(nil), f.items...)
	if q.PageSize > 0 && int64(len(items)) > q.PageSize {
		items = items[:q.PageSize]
	}
	return &provider.Page{Items: items, NextCursor: f.nextCursor}, nil
}

func (f *fakeDrive) Download(ctx context.Context, id string, limit int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.downloadErr[id]; err != nil {
		return nil, err
	}
	data, ok := f.content[id]
	if !ok {
		return nil, fmt.Errorf("%w: no content for %s", provider.ErrRequestFailed, id)
	}
	if int64(len(data)) > limit {
		return nil, provider.ErrTooLarge
	}
	return data, nil
}

type fakeCalendar struct {
	mu       sync.Mutex
	items    []provider.Item
	bodies   map[string]provider.EventBody
	inserted []provider.EventBody
	updated  map[string]provider.EventBody
	writeErr error
	seq      int
	clock    time.Time
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		bodies:  map[string]provider.EventBody{},
		updated: map[string]provider.EventBody{},
		clock:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeCalendar) add(body provider.EventBody) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[body.ID] = body
	f.items = append(f.items, provider.Item{ID: body.ID, Name: body.Title, MimeType: eventMimeType, ModifiedAt: body.Updated})
}

func (f *fakeCalendar) ListItems(_ context.Context, _ provider.Query) (*provider.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &provider.Page{Items: append([]provider.Item(nil), f.items...)}, nil
}

func (f *fakeCalendar) GetEvent(_ context.Context, _, eventID string) (*provider.EventBody, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: event %s not found", provider.ErrRequestFailed, eventID)
	}
	return &body, nil
}

func (f *fakeCalendar) InsertEvent(_ context.Context, _ string, body provider.EventBody) (*provider.EventBody, error) {
	f.mu.Lock()
	if f.writeErr != nil {
		f.mu.Unlock()
		return nil, f.writeErr
	}
	f.seq++
	f.clock = f.clock.Add(time.Minute)
	body.ID = fmt.Sprintf("g-%d", f.seq)
	body.Updated = f.clock
	f.inserted = append(f.inserted, body)
	f.mu.Unlock()

	f.add(body)
	return &body, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, _, eventID string, body provider.EventBody) (*provider.EventBody, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.clock = f.clock.Add(time.Minute)
	body.ID = eventID
	body.Updated = f.clock
	f.updated[eventID] = body
	f.bodies[eventID] = body
	for i := range f.items {
		if f.items[i].ID == eventID {
			f.items[i].Name = body.Title
			f.items[i].ModifiedAt = body.Updated
		}
	}
	return &body, nil
}

// blobs, notifications, realtime

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (b *memBlobs) Put(_ context.Context, key, _ string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.data == nil {
		b.data = map[string][]byte{}
	}
	b.data[key] = data
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	inputs []notify.Input
}

func (n *recordingNotifier) Create(_ context.Context, in notify.Input) (*store.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inputs = append(n.inputs, in)
	return &store.Notification{UserID: in.UserID, Severity: in.Severity, Title: in.Title}, nil
}

type emitted struct {
	userID, event string
	payload       any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(userID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{userID, event, payload})
}

func (e *recordingEmitter) named(event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}
