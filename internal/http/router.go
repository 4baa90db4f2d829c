package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jw6ventures/casefile/internal/api"
	"github.com/jw6ventures/casefile/internal/auth"
	"github.com/jw6ventures/casefile/internal/config"
	"github.com/jw6ventures/casefile/internal/http/ratelimit"
	"github.com/jw6ventures/casefile/internal/metrics"
)

// Deps are the handlers and checks the router mounts.
type Deps struct {
	API      *api.Handler
	Verifier auth.Verifier
	Realtime http.Handler
	// Ready reports whether backing services (the database) are reachable.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// NewRouter wires all HTTP routes. The returned func stops the rate
// limiters' cleanup goroutines.
func NewRouter(cfg *config.Config, deps Deps) (http.Handler, func()) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// OAuth endpoints: 5 requests per second, burst of 10
	oauthLimiter := ratelimit.New(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// API: 20 requests per second, burst of 50
	apiLimiter := ratelimit.New(rate.Limit(20), 50, 5*time.Minute, cfg.TrustedProxies)
	// Manual sync triggers: one every 10 seconds per user, burst of 3
	syncLimiter := ratelimit.New(rate.Every(10*time.Second), 3, 10*time.Minute, cfg.TrustedProxies).WithKey(userKey)

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if deps.Ready != nil {
			if err := deps.Ready(ctx); err != nil {
				http.Error(w, "unready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	h := deps.API
	r.With(oauthLimiter.Middleware()).Get(cfg.Google.RedirectPath, h.OAuthCallback)

	// The websocket authenticates its own handshake so browsers can pass
	// the token as a query parameter.
	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apiLimiter.Middleware())
		r.Use(auth.Middleware(deps.Verifier))

		r.Get("/connections", h.ListConnections)
		r.With(oauthLimiter.Middleware()).Post("/connections/oauth/start", h.StartOAuth)
		r.Get("/connections/{id}", h.GetConnection)
		r.With(syncLimiter.Middleware()).Post("/connections/{id}/sync", h.TriggerSync)
		r.Get("/connections/{id}/sync", h.LastSyncResult)
		r.Post("/connections/{id}/disconnect", h.DisconnectConnection)

		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications", h.CreateNotification)
		r.Get("/notifications/unread-count", h.UnreadCount)
		r.Post("/notifications/read-all", h.MarkAllNotificationsRead)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)
		r.Delete("/notifications/{id}", h.DeleteNotification)

		r.Get("/documents", h.ListDocuments)
		r.Get("/documents/{id}/download", h.DownloadDocument)

		r.Get("/events", h.ListEvents)
		r.Get("/events.ics", h.ExportEvents)
	})

	stop := func() {
		oauthLimiter.Stop()
		apiLimiter.Stop()
		syncLimiter.Stop()
	}
	return r, stop
}

func userKey(r *http.Request) string {
	if id, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + id
	}
	return ""
}
