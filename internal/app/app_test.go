package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jw6ventures/casefile/internal/config"
)

func testConfig(issuer string) *config.Config {
	cfg := &config.Config{ListenAddr: "127.0.0.1:0", BaseURL: "http://localhost:8080"}
	cfg.Google.ClientID = "client"
	cfg.Google.ClientSecret = "secret"
	cfg.Google.RedirectPath = "/oauth/callback"
	cfg.Google.IssuerURL = issuer
	cfg.Secrets.TokenEncryptionKey = "0123456789abcdef0123456789abcdef"
	cfg.Secrets.JWTSecret = "fedcba9876543210fedcba9876543210"
	cfg.Secrets.OAuthStateKey = cfg.Secrets.JWTSecret
	cfg.S3.Bucket = "casefile"
	cfg.S3.Region = "us-east-1"
	cfg.S3.Endpoint = "http://127.0.0.1:9000"
	cfg.S3.AccessKey = "minio"
	cfg.S3.SecretKey = "minio123"
	cfg.S3.PathStyle = true
	cfg.Sync.PageSize = 100
	cfg.Sync.MaxFileBytes = 10 << 20
	return cfg
}

func TestNewWiresRouter(t *testing.T) {
	issuer := httptest.NewServer(http.NotFoundHandler())
	defer issuer.Close()

	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	a, err := New(context.Background(), testConfig(issuer.URL), pool, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	pool.ExpectPing()
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	pool.ExpectPing().WillReturnError(errors.New("connection refused"))
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, pool.ExpectationsWereMet())

	token, err := a.Issuer.Issue("u1")
	require.NoError(t, err)
	user, err := a.Issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", user)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewRejectsEmptyEncryptionKey(t *testing.T) {
	issuer := httptest.NewServer(http.NotFoundHandler())
	defer issuer.Close()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer pool.Close()

	cfg := testConfig(issuer.URL)
	cfg.Secrets.TokenEncryptionKey = ""
	_, err = New(context.Background(), cfg, pool, nil)
	require.Error(t, err)
}
