// Package oauth owns the OAuth lifecycle of external connections: the
// consent handshake that creates them and the refresh that keeps their
// access tokens valid.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jw6ventures/casefile/internal/metrics"
	"github.com/jw6ventures/casefile/internal/store"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultRefreshMargin is how close to expiry a token is refreshed early.
const DefaultRefreshMargin = 5 * time.Minute

// TokenCipher encrypts tokens at rest.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(value string) (string, error)
}

// ConnectionTokens is the part of the connection repository the manager needs.
type ConnectionTokens interface {
	GetByID(ctx context.Context, id string) (*store.Connection, error)
	UpdateTokens(ctx context.Context, id, accessEnc string, refreshEnc *string, expiresAt *time.Time) error
}

// Manager hands out valid plaintext access tokens for connections.
type Manager struct {
	conns      ConnectionTokens
	cipher     TokenCipher
	oauth      *oauth2.Config
	margin     time.Duration
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

type ManagerOption func(*Manager)

func WithRefreshMargin(d time.Duration) ManagerOption {
	return func(m *Manager) { m.margin = d }
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.httpClient = c }
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(conns ConnectionTokens, cipher TokenCipher, cfg *oauth2.Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		conns:  conns,
		cipher: cipher,
		oauth:  cfg,
		margin: DefaultRefreshMargin,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// EnsureValidAccessToken returns the connection's access token, refreshing
// it first when the stored expiry is missing or within the safety margin.
func (m *Manager) EnsureValidAccessToken(ctx context.Context, connectionID string) (string, error) {
	conn, err := m.conns.GetByID(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("load connection: %w", err)
	}

	hasRefresh := conn.RefreshTokenEnc != nil && *conn.RefreshTokenEnc != ""
	if conn.AccessTokenEnc == "" && !hasRefresh {
		return "", ErrTokenMissing
	}

	if conn.AccessTokenEnc != "" && conn.TokenExpiresAt != nil && conn.TokenExpiresAt.After(m.now().Add(m.margin)) {
		access, err := m.cipher.Decrypt(conn.AccessTokenEnc)
		if err != nil {
			return "", fmt.Errorf("decrypt access token: %w", err)
		}
		return access, nil
	}

	if !hasRefresh {
		return "", ErrTokenMissing
	}
	return m.refresh(ctx, conn)
}

func (m *Manager) refresh(ctx context.Context, conn *store.Connection) (string, error) {
	log := m.logger.With(zap.String("connection_id", conn.ID))

	refreshToken, err := m.cipher.Decrypt(*conn.RefreshTokenEnc)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}
	tok, err := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			metrics.IncTokenRefresh("rejected")
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			log.Warn("refresh token rejected", zap.Int("status", status), zap.String("error_code", retrieveErr.ErrorCode))
		} else {
			metrics.IncTokenRefresh("error")
			log.Warn("token refresh failed", zap.Error(err))
		}
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	if tok.AccessToken == "" {
		metrics.IncTokenRefresh("error")
		return "", fmt.Errorf("%w: empty access token in response", ErrRefreshFailed)
	}

	accessEnc, err := m.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshEnc *string
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		enc, err := m.cipher.Encrypt(tok.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("encrypt refresh token: %w", err)
		}
		refreshEnc = &enc
	}
	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		expiresAt = &exp
	}

	if err := m.conns.UpdateTokens(ctx, conn.ID, accessEnc, refreshEnc, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	metrics.IncTokenRefresh("ok")
	log.Debug("access token refreshed", zap.Bool("refresh_rotated", refreshEnc != nil))
	return tok.AccessToken, nil
}
