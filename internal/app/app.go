// Package app builds the object graph shared by the server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jw6ventures/casefile/internal/api"
	"github.com/jw6ventures/casefile/internal/auth"
	"github.com/jw6ventures/casefile/internal/blobstore"
	"github.com/jw6ventures/casefile/internal/config"
	httpserver "github.com/jw6ventures/casefile/internal/http"
	"github.com/jw6ventures/casefile/internal/notify"
	"github.com/jw6ventures/casefile/internal/oauth"
	"github.com/jw6ventures/casefile/internal/provider"
	"github.com/jw6ventures/casefile/internal/realtime"
	"github.com/jw6ventures/casefile/internal/store"
	"github.com/jw6ventures/casefile/internal/syncer"
	"github.com/jw6ventures/casefile/internal/tokencrypt"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Store     *store.Store
	Issuer    *auth.Issuer
	Tokens    *oauth.Manager
	Connector *oauth.Connector
	Hub       *realtime.Hub
	Notify    *notify.Service
	Reminders *notify.Reminders
	Engine    *syncer.Engine
	Scheduler *syncer.Scheduler
	API       *api.Handler

	handler    http.Handler
	stopRouter func()
}

// New wires every component on top of pool. ctx bounds background work the
// API starts (manual sync passes).
func New(ctx context.Context, cfg *config.Config, pool store.DB, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cipher, err := tokencrypt.New(cfg.Secrets.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	blobs, err := blobstore.New(ctx, blobstore.Config{
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		PathStyle: cfg.S3.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}
	a.Store = store.New(pool)
	a.Issuer = auth.NewIssuer(cfg.Secrets.JWTSecret, cfg.API.TokenTTL)

	oauthCfg := oauth.GoogleConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.RedirectURL())
	a.Tokens = oauth.NewManager(a.Store.Connections, cipher, oauthCfg, logger.Named("oauth"),
		oauth.WithRefreshMargin(cfg.Sync.TokenRefreshMargin))
	a.Connector = oauth.NewConnector(a.Store.Connections, cipher, oauthCfg, cfg.Secrets.OAuthStateKey,
		idTokenVerifier(ctx, cfg, logger), logger.Named("oauth"))

	a.Hub = realtime.NewHub(a.Issuer, logger.Named("realtime"), realtime.WithOriginPatterns(cfg.API.WSAllowedOrigins...))
	a.Notify = notify.NewService(a.Store.Notifications, a.Hub, logger.Named("notify"))
	a.Reminders = notify.NewReminders(a.Store.Events, a.Notify, cfg.Sync.ReminderLead, logger.Named("reminders"))

	a.Engine = syncer.NewEngine(syncer.Deps{
		Connections: a.Store.Connections,
		Mirrors:     a.Store.Mirrors,
		Documents:   a.Store.Documents,
		Events:      a.Store.Events,
		Tokens:      a.Tokens,
		Providers:   provider.NewFactory(cfg.Sync.ProviderTimeout),
		Blobs:       blobs,
		Notifier:    a.Notify,
		Emitter:     a.Hub,
	}, syncer.Options{
		PageSize:          int64(cfg.Sync.PageSize),
		MaxFileBytes:      cfg.Sync.MaxFileBytes,
		ModifiedTolerance: cfg.Sync.ModifiedTolerance,
	}, logger.Named("syncer"))
	a.Scheduler = syncer.NewScheduler(a.Engine, a.Store.Connections, a.Reminders, cfg.Sync.SchedulerInterval, logger.Named("scheduler"))

	a.API = api.NewHandler(ctx, api.Deps{
		Connections:      a.Store.Connections,
		Documents:        a.Store.Documents,
		Events:           a.Store.Events,
		Notifications:    a.Notify,
		Syncer:           a.Engine,
		Connector:        a.Connector,
		Presigner:        blobs,
		CallbackRedirect: cfg.API.OAuthSuccessRedirect,
		DownloadTTL:      cfg.API.DownloadURLTTL,
	}, logger.Named("api"))

	a.handler, a.stopRouter = httpserver.NewRouter(cfg, httpserver.Deps{
		API:      a.API,
		Verifier: a.Issuer,
		Realtime: a.Hub,
		Ready:    a.Store.HealthCheck,
		Logger:   logger.Named("http"),
	})
	return a, nil
}

// idTokenVerifier returns nil when the issuer's discovery document cannot
// be fetched; connections are then created without an account email.
func idTokenVerifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) *oidc.IDTokenVerifier {
	discoverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	p, err := oidc.NewProvider(discoverCtx, cfg.Google.IssuerURL)
	if err != nil {
		logger.Warn("oidc discovery failed, account emails disabled", zap.String("issuer", cfg.Google.IssuerURL), zap.Error(err))
		return nil
	}
	return p.Verifier(&oidc.Config{ClientID: cfg.Google.ClientID})
}

// Handler is the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and runs the scheduler until ctx is done, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", zap.String("addr", a.cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.Scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		a.Hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	a.Close()
	return err
}

// Close releases background resources. Manual sync passes still running
// are waited for.
func (a *App) Close() {
	a.Hub.Close()
	a.API.Wait()
	a.stopRouter()
}
