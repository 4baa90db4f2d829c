package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jw6ventures/casefile/internal/api"
	"github.com/jw6ventures/casefile/internal/auth"
	"github.com/jw6ventures/casefile/internal/config"
	"github.com/jw6ventures/casefile/internal/notify"
	"github.com/jw6ventures/casefile/internal/store"
	"github.com/jw6ventures/casefile/internal/syncer"
)

type stubNotifications struct{}

func (stubNotifications) Create(context.Context, notify.Input) (*store.Notification, error) {
	return nil, errors.New("not used")
}
func (stubNotifications) MarkRead(context.Context, string, string) error { return nil }
func (stubNotifications) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }
func (stubNotifications) Delete(context.Context, string, string) error { return nil }
func (stubNotifications) UnreadCount(context.Context, string) (int, error) { return 7, nil }
func (stubNotifications) List(context.Context, string, int, bool) ([]store.Notification, error) {
	return nil, nil
}

type stubConns struct{}

func (stubConns) GetByID(_ context.Context, id string) (*store.Connection, error) {
	return &store.Connection{ID: id, UserID: "u1", Status: store.StatusConnected}, nil
}
func (stubConns) ListByUser(context.Context, string) ([]store.Connection, error) { return nil, nil }
func (stubConns) Disconnect(context.Context, string, string) error { return nil }

type stubSyncer struct{}

func (stubSyncer) RunPass(_ context.Context, id string, _ syncer.ProgressFunc) (*syncer.Result, error) {
	return &syncer.Result{ConnectionID: id}, nil
}
func (stubSyncer) LastResult(string) (*syncer.Result, bool) { return nil, false }

func newTestRouter(t *testing.T, ready func(context.Context) error, logger *zap.Logger) (http.Handler, *auth.Issuer) {
	t.Helper()
	cfg := &config.Config{PrometheusEnabled: true}
	cfg.Google.RedirectPath = "/oauth/callback"

	issuer := auth.NewIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	h := api.NewHandler(context.Background(), api.Deps{
		Connections:   stubConns{},
		Notifications: stubNotifications{},
		Syncer:        stubSyncer{},
	}, zaptest.NewLogger(t))
	t.Cleanup(h.Wait)

	router, stop := NewRouter(cfg, Deps{API: h, Verifier: issuer, Ready: ready, Logger: logger})
	t.Cleanup(stop)
	return router, issuer
}

func TestHealthAndReadiness(t *testing.T) {
	var dbErr error
	router, _ := newTestRouter(t, func(context.Context) error { return dbErr }, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	dbErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router, issuer := newTestRouter(t, nil, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, `Bearer realm="casefile"`, rec.Header().Get("WWW-Authenticate"))

	token, err := issuer.Issue("u1")
	require.NoError(t, err)

	// Query tokens are only honored on the websocket handshake.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count?token="+token, nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":7}`, rec.Body.String())
}

func TestSyncTriggerIsLimitedPerUser(t *testing.T) {
	router, issuer := newTestRouter(t, nil, zaptest.NewLogger(t))
	token, err := issuer.Issue("u1")
	require.NoError(t, err)

	var codes []int
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/connections/c1/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusAccepted, http.StatusAccepted, http.StatusAccepted, http.StatusTooManyRequests}, codes)
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "casefile_http_requests_total")
}

func TestRequestLoggerOmitsQuery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router, _ := newTestRouter(t, nil, zap.New(core))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/callback?error=access_denied&state=secret", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	entries := logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/oauth/callback", fields["path"])
	require.EqualValues(t, http.StatusBadRequest, fields["status"])
}
