package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jw6ventures/casefile/internal/auth"
)

const secret = "jwt-secret-jwt-secret-jwt-secret"

func newServer(t *testing.T, opts ...Option) (*Hub, *httptest.Server, *auth.Issuer) {
	t.Helper()
	iss := auth.NewIssuer(secret, time.Hour)
	hub := NewHub(iss, zaptest.NewLogger(t), opts...)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv, iss
}

func dial(t *testing.T, srv *httptest.Server, header http.Header, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestHandshakeRequiresToken(t *testing.T) {
	_, srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEmitDeliversToUserClients(t *testing.T) {
	hub, srv, iss := newServer(t)

	tok, err := iss.Issue("user-1")
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	byHeader := dial(t, srv, header, "")
	byQuery := dial(t, srv, nil, "?token="+tok)

	require.Eventually(t, func() bool { return hub.ClientCount("user-1") == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Emit("user-2", EventSyncProgress, map[string]int{"processed": 9})
	hub.Emit("user-1", EventSyncProgress, map[string]int{"processed": 1, "total": 3})

	for _, conn := range []*websocket.Conn{byHeader, byQuery} {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		var got struct {
			Event string         `json:"event"`
			Data  map[string]int `json:"data"`
		}
		require.NoError(t, wsjson.Read(ctx, conn, &got))
		cancel()
		require.Equal(t, EventSyncProgress, got.Event)
		require.Equal(t, map[string]int{"processed": 1, "total": 3}, got.Data)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub, srv, iss := newServer(t)
	tok, err := iss.Issue("user-1")
	require.NoError(t, err)

	conn := dial(t, srv, nil, "?token="+tok)
	require.Eventually(t, func() bool { return hub.ClientCount("user-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.ClientCount("user-1") == 0 }, 2*time.Second, 10*time.Millisecond)

	// No clients left: emitting is a no-op.
	hub.Emit("user-1", EventSyncCompleted, nil)
}

func TestEmitWithoutClientsLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	hub := NewHub(auth.NewIssuer(secret, time.Hour), zap.New(core))

	hub.Emit("user-9", EventSyncProgress, map[string]int{"index": 1})

	entries := logs.FilterMessage("no live clients, dropping event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "user-9", fields["user_id"])
	require.Equal(t, EventSyncProgress, fields["event"])
}

func TestEmitDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(auth.NewIssuer(secret, time.Hour), zaptest.NewLogger(t), WithQueueSize(1))
	c := hub.register("user-1")
	defer hub.unregister(c)

	hub.Emit("user-1", EventNotificationNew, "first")
	hub.Emit("user-1", EventNotificationNew, "second")

	require.Len(t, c.send, 1)
	msg := <-c.send
	require.Equal(t, "first", msg.Data)
}
