package oauth

import "errors"

var (
	// ErrTokenMissing means the connection has no usable access or refresh token.
	ErrTokenMissing = errors.New("oauth token missing")
	// ErrRefreshFailed means the provider rejected the refresh token. The user
	// has to authorize the connection again.
	ErrRefreshFailed = errors.New("oauth token refresh failed")
	// ErrInvalidState is returned for a callback whose state is forged or expired.
	ErrInvalidState = errors.New("invalid oauth state")
)
