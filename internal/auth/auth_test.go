package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-secret-jwt-secret-jwt-secret"

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour)
	tok, err := iss.Issue("user-1")
	require.NoError(t, err)

	userID, err := iss.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestVerifyRejects(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour)

	expired := NewIssuer(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("user-1")
	require.NoError(t, err)

	other, err := NewIssuer("another-secret-another-secret-xx", time.Hour).Issue("user-1")
	require.NoError(t, err)

	wrongAud, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:  "user-1",
		Audience: jwt.ClaimStrings{Audience},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"expired":      old,
		"wrong secret": other,
		"wrong aud":    wrongAud,
		"no expiry":    noExp,
		"malformed":    "not.a.jwt",
	} {
		_, err := iss.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestIssueRequiresUser(t *testing.T) {
	_, err := NewIssuer(testSecret, 0).Issue("")
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour)
	var seen string
	h := Middleware(iss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")

	tok, err := iss.Issue("user-9")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?token="+tok, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "query tokens are only accepted on the websocket handshake")

	req = httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	req.Header.Set("Authorization", "bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "user-9", seen)
}

func TestAuthenticateQueryFallback(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour)
	tok, err := iss.Issue("user-3")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil)
	userID, ok := Authenticate(iss, req, true)
	require.True(t, ok)
	require.Equal(t, "user-3", userID)

	_, ok = Authenticate(iss, httptest.NewRequest(http.MethodGet, "/ws?token=bogus", nil), true)
	require.False(t, ok)
}

func TestUserIDFromContextEmpty(t *testing.T) {
	_, ok := UserIDFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.False(t, ok)
}
