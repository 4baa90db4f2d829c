package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

func TestMiddlewareLimitsPerIP(t *testing.T) {
	l := New(rate.Limit(1), 2, time.Minute, nil)
	defer l.Stop()
	h := l.Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/connections/c1/sync", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/api/connections/c1/sync", nil)
	other.RemoteAddr = "10.0.0.2:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareKeyFunc(t *testing.T) {
	l := New(rate.Limit(1), 1, time.Minute, nil).WithKey(func(r *http.Request) string {
		return r.Header.Get("X-User")
	})
	defer l.Stop()
	h := l.Middleware()(okHandler())

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, send("u1").Code)
	limited := send("u1")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.Equal(t, "1", limited.Header().Get("Retry-After"))
	require.Equal(t, http.StatusNoContent, send("u2").Code)
}

func TestClientIPTrustedProxies(t *testing.T) {
	l := New(rate.Limit(1), 1, time.Minute, []string{"192.168.1.10", "10.0.0.0/8"})
	defer l.Stop()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.2.3")
	require.Equal(t, "203.0.113.7", l.ClientIP(req))

	untrusted := httptest.NewRequest(http.MethodGet, "/", nil)
	untrusted.RemoteAddr = "198.51.100.1:5555"
	untrusted.Header.Set("X-Forwarded-For", "203.0.113.7")
	require.Equal(t, "198.51.100.1", l.ClientIP(untrusted))

	real := httptest.NewRequest(http.MethodGet, "/", nil)
	real.RemoteAddr = "192.168.1.10:80"
	real.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", l.ClientIP(real))
}

func TestEvictsOldestWhenFull(t *testing.T) {
	l := New(rate.Limit(1), 1, time.Minute, nil)
	defer l.Stop()
	l.maxEntries = 2

	l.getLimiter("a")
	time.Sleep(time.Millisecond)
	l.getLimiter("b")
	l.getLimiter("c")

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.limiters, 2)
	require.NotContains(t, l.limiters, "a")
}
