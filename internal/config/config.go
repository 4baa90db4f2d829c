package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	Google struct {
		ClientID     string
		ClientSecret string
		RedirectPath string
		IssuerURL    string
	}

	Secrets struct {
		TokenEncryptionKey string
		JWTSecret          string
		OAuthStateKey      string
	}

	S3 struct {
		Bucket    string
		Region    string
		Endpoint  string
		AccessKey string
		SecretKey string
		PathStyle bool
	}

	Sync struct {
		PageSize           int
		MaxFileBytes       int64
		ModifiedTolerance  time.Duration
		ProviderTimeout    time.Duration
		TokenRefreshMargin time.Duration
		SchedulerInterval  time.Duration
		ReminderLead       time.Duration
	}

	API struct {
		// OAuthSuccessRedirect is where browsers land after connecting an
		// account. Empty answers the callback with JSON.
		OAuthSuccessRedirect string
		DownloadURLTTL       time.Duration
		TokenTTL             time.Duration
		WSAllowedOrigins     []string
	}

	Log struct {
		Level  string
		Format string
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}
	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = strings.TrimRight(getenvDefault("APP_BASE_URL", "http://localhost:8080"), "/")

	cfg.DB.DSN = os.Getenv("APP_DB_DSN")
	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Google.ClientID = os.Getenv("APP_GOOGLE_CLIENT_ID")
	cfg.Google.ClientSecret = os.Getenv("APP_GOOGLE_CLIENT_SECRET")
	cfg.Google.RedirectPath = getenvDefault("APP_GOOGLE_REDIRECT_PATH", "/oauth/callback")
	cfg.Google.IssuerURL = getenvDefault("APP_GOOGLE_ISSUER_URL", "https://accounts.google.com")

	cfg.Secrets.TokenEncryptionKey = os.Getenv("APP_TOKEN_ENCRYPTION_KEY")
	cfg.Secrets.JWTSecret = os.Getenv("APP_JWT_SECRET")
	cfg.Secrets.OAuthStateKey = getenvDefault("APP_OAUTH_STATE_KEY", cfg.Secrets.JWTSecret)

	cfg.S3.Bucket = os.Getenv("APP_S3_BUCKET")
	cfg.S3.Region = getenvDefault("APP_S3_REGION", "us-east-1")
	cfg.S3.Endpoint = os.Getenv("APP_S3_ENDPOINT")
	cfg.S3.AccessKey = os.Getenv("APP_S3_ACCESS_KEY")
	cfg.S3.SecretKey = os.Getenv("APP_S3_SECRET_KEY")
	cfg.S3.PathStyle = getenvBool("APP_S3_PATH_STYLE", cfg.S3.Endpoint != "")

	cfg.Sync.PageSize = getenvInt("APP_SYNC_PAGE_SIZE", 100)
	cfg.Sync.MaxFileBytes = int64(getenvInt("APP_SYNC_MAX_FILE_BYTES", 10<<20))
	cfg.Sync.ModifiedTolerance = getenvDuration("APP_SYNC_MODIFIED_TOLERANCE", time.Second)
	cfg.Sync.ProviderTimeout = getenvDuration("APP_PROVIDER_TIMEOUT", 30*time.Second)
	cfg.Sync.TokenRefreshMargin = getenvDuration("APP_TOKEN_REFRESH_MARGIN", 5*time.Minute)
	cfg.Sync.SchedulerInterval = getenvDuration("APP_SYNC_SCHEDULER_INTERVAL", time.Minute)
	cfg.Sync.ReminderLead = getenvDuration("APP_REMINDER_LEAD", 24*time.Hour)

	cfg.API.OAuthSuccessRedirect = os.Getenv("APP_OAUTH_SUCCESS_REDIRECT")
	cfg.API.DownloadURLTTL = getenvDuration("APP_DOWNLOAD_URL_TTL", 5*time.Minute)
	cfg.API.TokenTTL = getenvDuration("APP_TOKEN_TTL", 24*time.Hour)
	cfg.API.WSAllowedOrigins = getenvList("APP_WS_ALLOWED_ORIGINS")

	cfg.Log.Level = getenvDefault("APP_LOG_LEVEL", "info")
	cfg.Log.Format = getenvDefault("APP_LOG_FORMAT", "json")

	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DB.DSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return errors.New("google oauth configuration is required: APP_GOOGLE_CLIENT_ID and APP_GOOGLE_CLIENT_SECRET")
	}
	if len(c.Secrets.TokenEncryptionKey) < 32 {
		return fmt.Errorf("APP_TOKEN_ENCRYPTION_KEY must be at least 32 characters long (got %d)", len(c.Secrets.TokenEncryptionKey))
	}
	if len(c.Secrets.JWTSecret) < 32 {
		return fmt.Errorf("APP_JWT_SECRET must be at least 32 characters long (got %d)", len(c.Secrets.JWTSecret))
	}
	if len(c.Secrets.OAuthStateKey) < 32 {
		return fmt.Errorf("APP_OAUTH_STATE_KEY must be at least 32 characters long (got %d)", len(c.Secrets.OAuthStateKey))
	}
	if c.S3.Bucket == "" {
		return errors.New("APP_S3_BUCKET is required")
	}
	if c.Sync.PageSize <= 0 || c.Sync.PageSize > 1000 {
		return fmt.Errorf("APP_SYNC_PAGE_SIZE must be between 1 and 1000 (got %d)", c.Sync.PageSize)
	}
	if c.Sync.MaxFileBytes <= 0 {
		return errors.New("APP_SYNC_MAX_FILE_BYTES must be positive")
	}
	if c.Sync.ModifiedTolerance < 0 {
		return errors.New("APP_SYNC_MODIFIED_TOLERANCE must not be negative")
	}
	return nil
}

// RedirectURL is the absolute OAuth callback registered with Google.
func (c *Config) RedirectURL() string {
	return c.BaseURL + c.Google.RedirectPath
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}

func getenvDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return value
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
