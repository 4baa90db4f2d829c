// Package syncer runs one-pass reconciliations between a Google Drive
// folder or Google Calendar and the user's local documents and events.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jw6ventures/casefile/internal/metrics"
	"github.com/jw6ventures/casefile/internal/notify"
	"github.com/jw6ventures/casefile/internal/oauth"
	"github.com/jw6ventures/casefile/internal/provider"
	"github.com/jw6ventures/casefile/internal/realtime"
	"github.com/jw6ventures/casefile/internal/store"
)

// Source values written on materialized objects.
const (
	SourceDrive    = "google_drive"
	SourceCalendar = "google_calendar"
)

type Connections interface {
	GetByID(ctx context.Context, id string) (*store.Connection, error)
	SetStatus(ctx context.Context, id string, status store.ConnectionStatus, lastError *string) error
	RecordPass(ctx context.Context, id string, outcome store.PassOutcome) error
}

type Mirrors interface {
	Get(ctx context.Context, connectionID, remoteID string) (*store.MirrorRecord, error)
	Upsert(ctx context.Context, rec store.MirrorRecord) (*store.MirrorRecord, error)
}

type Documents interface {
	Create(ctx context.Context, doc store.Document) (*store.Document, error)
	Update(ctx context.Context, doc store.Document) (*store.Document, error)
}

type Events interface {
	Create(ctx context.Context, event store.Event) (*store.Event, error)
	Update(ctx context.Context, event store.Event) (*store.Event, error)
	ListForPush(ctx context.Context, userID, connectionID string) ([]store.PushCandidate, error)
}

// TokenSource hands out a valid plaintext access token for a connection.
type TokenSource interface {
	EnsureValidAccessToken(ctx context.Context, connectionID string) (string, error)
}

// Providers builds provider clients for an access token.
type Providers interface {
	Drive(ctx context.Context, accessToken string) (provider.DriveAPI, error)
	Calendar(ctx context.Context, accessToken string) (provider.CalendarAPI, error)
}

// Blobs stores downloaded file content.
type Blobs interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

type Notifier interface {
	Create(ctx context.Context, in notify.Input) (*store.Notification, error)
}

type Emitter interface {
	Emit(userID, event string, payload any)
}

// Deps are the collaborators of an Engine. Notifier and Emitter are optional.
type Deps struct {
	Connections Connections
	Mirrors     Mirrors
	Documents   Documents
	Events      Events
	Tokens      TokenSource
	Providers   Providers
	Blobs       Blobs
	Notifier    Notifier
	Emitter     Emitter
}

type Options struct {
	// PageSize caps the items listed per pass.
	PageSize int64
	// MaxFileBytes caps a single downloaded file.
	MaxFileBytes int64
	// ModifiedTolerance is how far apart stored and remote modified
	// instants may be for an item to count as unchanged.
	ModifiedTolerance time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = 10 << 20
	}
	if o.ModifiedTolerance < 0 {
		o.ModifiedTolerance = 0
	}
	return o
}

// Engine runs sync passes. At most one pass per connection is in flight;
// concurrent callers for the same connection share its result.
type Engine struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	last map[string]*Result
}

func NewEngine(deps Deps, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
		last:   make(map[string]*Result),
	}
}

// RunPass runs one sync pass for connectionID. onProgress, if set, is
// called after every item; a caller that joins a pass already in flight
// gets the shared result but no progress callbacks.
//
// A pass-fatal error (token, listing) is returned together with the
// Result describing the pass up to that point.
//
// Once started, a pass runs its listed batch to completion even if ctx is
// cancelled; provider calls are bounded by their own timeout.
func (e *Engine) RunPass(ctx context.Context, connectionID string, onProgress ProgressFunc) (*Result, error) {
	v, err, shared := e.group.Do(connectionID, func() (any, error) {
		return e.run(context.WithoutCancel(ctx), connectionID, onProgress)
	})
	if shared {
		e.logger.Debug("joined in-flight sync pass", zap.String("connection_id", connectionID))
	}
	res, _ := v.(*Result)
	if res != nil {
		res = res.clone()
	}
	return res, err
}

// LastResult returns the most recent pass result for connectionID seen by
// this process.
func (e *Engine) LastResult(connectionID string) (*Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.last[connectionID]
	if !ok {
		return nil, false
	}
	return res.clone(), true
}

func (e *Engine) run(ctx context.Context, connectionID string, onProgress ProgressFunc) (*Result, error) {
	conn, err := e.deps.Connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("load connection %s: %w", connectionID, err)
	}
	if conn.Status == store.StatusDisconnected {
		return nil, ErrConnectionDisabled
	}

	start := e.now()
	p := &pass{
		engine:     e,
		conn:       conn,
		res:        &Result{ConnectionID: conn.ID, StartedAt: start, Errors: []ItemError{}},
		onProgress: onProgress,
		heldBack:   map[string]struct{}{},
		log: e.logger.With(
			zap.String("connection_id", conn.ID),
			zap.String("user_id", conn.UserID),
			zap.String("kind", string(conn.Kind)),
		),
	}

	if err := e.deps.Connections.SetStatus(ctx, conn.ID, store.StatusSyncing, nil); err != nil {
		return nil, fmt.Errorf("mark connection syncing: %w", err)
	}
	p.log.Info("sync pass started")

	cursor, passErr := p.execute(ctx)
	e.finish(ctx, p, cursor, passErr, start)
	return p.res, passErr
}

func (e *Engine) finish(ctx context.Context, p *pass, cursor *string, passErr error, start time.Time) {
	res := p.res
	res.FinishedAt = e.now()

	status := store.StatusConnected
	var lastErr *string
	switch {
	case passErr != nil:
		res.Error = passErr.Error()
		status = store.StatusError
		lastErr = &res.Error
	case res.Failed > 0:
		status = store.StatusError
		msg := fmt.Sprintf("%d of %d items failed; first: %s: %s", res.Failed, res.Processed, res.Errors[0].Name, res.Errors[0].Message)
		lastErr = &msg
	}

	err := e.deps.Connections.RecordPass(ctx, p.conn.ID, store.PassOutcome{
		Status:     status,
		Total:      res.Processed,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		LastError:  lastErr,
		SyncCursor: cursor,
		FinishedAt: res.FinishedAt,
	})
	if err != nil {
		p.log.Error("record sync pass", zap.Error(err))
	}

	outcome := "ok"
	switch {
	case passErr != nil:
		outcome = "error"
	case res.Failed > 0:
		outcome = "partial"
	}
	metrics.ObserveSyncPass(string(p.conn.Kind), outcome, start)

	e.mu.Lock()
	e.last[p.conn.ID] = res.clone()
	e.mu.Unlock()

	fields := []zap.Field{
		zap.Int("processed", res.Processed),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.FinishedAt.Sub(start)),
	}
	if passErr != nil {
		p.log.Warn("sync pass aborted", append(fields, zap.Error(passErr))...)
	} else {
		p.log.Info("sync pass finished", fields...)
	}

	e.emit(p.conn.UserID, realtime.EventSyncCompleted, Completion{
		ConnectionID: p.conn.ID,
		Processed:    res.Processed,
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
		Success:      res.Success(),
		Error:        res.Error,
	})
	e.notifyCompletion(ctx, p, passErr)
}

// notifyCompletion raises a notification for passes that changed or failed
// something. Passes that only skipped unchanged items stay quiet.
func (e *Engine) notifyCompletion(ctx context.Context, p *pass, passErr error) {
	if e.deps.Notifier == nil {
		return
	}
	res := p.res
	if passErr == nil && res.Failed == 0 && res.Processed == res.Skipped {
		return
	}

	label := "Google Drive"
	if p.conn.Kind == store.KindCalendar {
		label = "Google Calendar"
	}
	in := notify.Input{
		UserID:  p.conn.UserID,
		Actions: []store.NotificationAction{{Label: "View connection", Target: "/connections/" + p.conn.ID}},
	}
	switch {
	case errors.Is(passErr, oauth.ErrRefreshFailed), errors.Is(passErr, oauth.ErrTokenMissing):
		in.Severity = store.SeverityCritical
		in.Title = label + " needs to be reconnected"
		in.Message = "Access to your Google account expired or was revoked. Reconnect to resume syncing."
		in.Actions = []store.NotificationAction{{Label: "Reconnect", Target: "/connections/" + p.conn.ID + "/reconnect"}}
	case passErr != nil:
		in.Severity = store.SeverityCritical
		in.Title = label + " sync failed"
		in.Message = res.Error
	case res.Failed > 0:
		in.Severity = store.SeverityWarning
		in.Title = label + " sync finished with errors"
		in.Message = fmt.Sprintf("%d synced, %d failed.", res.Succeeded, res.Failed)
	default:
		in.Severity = store.SeveritySuccess
		in.Title = label + " sync completed"
		in.Message = fmt.Sprintf("%d items synced.", res.Succeeded)
	}
	if _, err := e.deps.Notifier.Create(ctx, in); err != nil {
		p.log.Warn("create sync notification", zap.Error(err))
	}
}

func (e *Engine) emit(userID, event string, payload any) {
	if e.deps.Emitter == nil {
		e.logger.Debug("no emitter configured, dropping event", zap.String("user_id", userID), zap.String("event", event))
		return
	}
	e.deps.Emitter.Emit(userID, event, payload)
}

// unchanged reports whether a mirror already holds this remote version.
// Failed mirrors are never unchanged so they get retried.
func (e *Engine) unchanged(m *store.MirrorRecord, modified time.Time) bool {
	if m == nil || m.Status != store.MirrorCompleted || m.RemoteModifiedAt == nil || m.LocalID == nil {
		return false
	}
	d := m.RemoteModifiedAt.Sub(modified)
	if d < 0 {
		d = -d
	}
	return d <= e.opts.ModifiedTolerance
}

// pass is the state of one in-flight sync pass.
type pass struct {
	engine     *Engine
	conn       *store.Connection
	res        *Result
	onProgress ProgressFunc
	log        *zap.Logger
	// heldBack holds remote ids whose push failed in this pass.
	heldBack   map[string]struct{}
}

func (p *pass) execute(ctx context.Context) (*string, error) {
	e := p.engine
	token, err := e.deps.Tokens.EnsureValidAccessToken(ctx, p.conn.ID)
	if err != nil {
		return p.conn.SyncCursor, err
	}

	switch p.conn.Kind {
	case store.KindDrive:
		api, err := e.deps.Providers.Drive(ctx, token)
		if err != nil {
			return p.conn.SyncCursor, fmt.Errorf("drive client: %w", err)
		}
		return p.pullDrive(ctx, api)
	case store.KindCalendar:
		api, err := e.deps.Providers.Calendar(ctx, token)
		if err != nil {
			return p.conn.SyncCursor, fmt.Errorf("calendar client: %w", err)
		}
		dir := p.conn.Direction
		if dir == store.DirectionPush || dir == store.DirectionBidirectional {
			if err := p.pushCalendar(ctx, api); err != nil {
				return p.conn.SyncCursor, err
			}
		}
		if dir == store.DirectionPush {
			return p.conn.SyncCursor, nil
		}
		return p.pullCalendar(ctx, api)
	default:
		return p.conn.SyncCursor, fmt.Errorf("%w: %q", ErrUnsupportedKind, p.conn.Kind)
	}
}

// list fetches one page starting at the stored cursor. A cursor the
// provider rejects is dropped and the listing restarts from the beginning.
func (p *pass) list(fetch func(cursor string) (*provider.Page, error)) (*provider.Page, error) {
	cursor := deref(p.conn.SyncCursor)
	page, err := fetch(cursor)
	var le *provider.ListingError
	if err != nil && cursor != "" && errors.As(err, &le) && le.Status == http.StatusBadRequest {
		p.log.Warn("stored listing cursor rejected, restarting from the first page", zap.Error(err))
		page, err = fetch("")
	}
	if err != nil {
		return nil, err
	}
	return page, nil
}

// lookup loads the mirror for remoteID; a missing mirror is not an error.
func (p *pass) lookup(ctx context.Context, remoteID string) (*store.MirrorRecord, error) {
	m, err := p.engine.deps.Mirrors.Get(ctx, p.conn.ID, remoteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load mirror: %w", ErrItemPersistence, err)
	}
	return m, nil
}

func (p *pass) skipped(item provider.Item) {
	p.res.succeed(true)
	metrics.IncSyncItem(string(p.conn.Kind), "skipped")
	p.log.Debug("item unchanged", zap.String("remote_id", item.ID))
}

// synced records a completed mirror pointing at localID.
func (p *pass) synced(ctx context.Context, item provider.Item, prev *store.MirrorRecord, localID string) {
	modified := item.ModifiedAt
	_, err := p.engine.deps.Mirrors.Upsert(ctx, store.MirrorRecord{
		ConnectionID:     p.conn.ID,
		RemoteID:         item.ID,
		RemoteName:       item.Name,
		MimeType:         item.MimeType,
		SizeBytes:        item.Size,
		RemoteModifiedAt: &modified,
		Status:           store.MirrorCompleted,
		LocalID:          &localID,
	})
	if err != nil {
		p.failed(ctx, item, prev, &localID, fmt.Errorf("%w: save mirror: %w", ErrItemPersistence, err))
		return
	}
	p.res.succeed(false)
	metrics.IncSyncItem(string(p.conn.Kind), "synced")
}

// failed records a failed mirror. The stored remote-modified instant is
// left as it was so the item is retried on the next pass.
func (p *pass) failed(ctx context.Context, item provider.Item, prev *store.MirrorRecord, localID *string, cause error) {
	msg := cause.Error()
	rec := store.MirrorRecord{
		ConnectionID: p.conn.ID,
		RemoteID:     item.ID,
		RemoteName:   item.Name,
		MimeType:     item.MimeType,
		SizeBytes:    item.Size,
		Status:       store.MirrorFailed,
		RetryCount:   1,
		ErrorMessage: &msg,
		LocalID:      localID,
	}
	if prev != nil {
		rec.RetryCount = prev.RetryCount + 1
		rec.RemoteModifiedAt = prev.RemoteModifiedAt
		if rec.LocalID == nil {
			rec.LocalID = prev.LocalID
		}
	}
	if _, err := p.engine.deps.Mirrors.Upsert(ctx, rec); err != nil {
		p.log.Error("save failed mirror", zap.String("remote_id", item.ID), zap.Error(err))
	}
	p.recordFailure(item.ID, item.Name, cause)
}

func (p *pass) recordFailure(remoteID, name string, cause error) {
	p.res.fail(remoteID, name, cause)
	metrics.IncSyncItem(string(p.conn.Kind), "failed")
	p.log.Warn("sync item failed", zap.String("remote_id", remoteID), zap.String("name", name), zap.Error(cause))
}

func (p *pass) report(phase string, index, total int, name string) {
	pr := Progress{
		ConnectionID: p.conn.ID,
		Phase:        phase,
		Index:        index,
		Total:        total,
		Name:         name,
		Succeeded:    p.res.Succeeded,
		Failed:       p.res.Failed,
	}
	if p.onProgress != nil {
		p.onProgress(pr)
	}
	p.engine.emit(p.conn.UserID, realtime.EventSyncProgress, pr)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cursorOf(next string) *string {
	if next == "" {
		return nil
	}
	return &next
}
