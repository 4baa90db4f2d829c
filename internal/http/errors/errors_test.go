package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInternalErrorHidesCause(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		InternalError(w, r, errors.New("pq: password authentication failed"), "load connection")
	})
	handler = middleware.RequestID(handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	raw := rec.Body.String()
	require.NotContains(t, raw, "password")

	var body errorBody
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	require.Equal(t, "internal server error", body.Error)
	require.NotEmpty(t, body.RequestID)

	entries := logs.FilterMessage("load connection").All()
	require.Len(t, entries, 1)
	require.Equal(t, body.RequestID, entries[0].ContextMap()["request_id"])
}

func TestBadRequestUsesClientMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	BadRequestError(rec, httptest.NewRequest(http.MethodPost, "/", nil), errors.New("json: bad"), "invalid body")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"invalid body"}`, rec.Body.String())
}
