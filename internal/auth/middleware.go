package auth

import (
	"net/http"
	"strings"

	httperrors "github.com/jw6ventures/casefile/internal/http/errors"
)

// Verifier resolves a raw bearer token to a user id.
type Verifier interface {
	Verify(raw string) (string, error)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the request's user from the Authorization header,
// falling back to the token query parameter when allowQuery is set
// (browsers cannot set headers on a websocket handshake).
func Authenticate(v Verifier, r *http.Request, allowQuery bool) (string, bool) {
	raw := BearerToken(r)
	if raw == "" && allowQuery {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return "", false
	}
	userID, err := v.Verify(raw)
	if err != nil {
		return "", false
	}
	return userID, true
}

// Middleware rejects requests without a valid bearer token and stores the
// user id on the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := Authenticate(v, r, false)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="casefile"`)
				httperrors.Unauthorized(w, r, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
