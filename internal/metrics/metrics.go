package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ctxKey string

const (
	routeLabelKey   ctxKey = "metrics_route"
	requestIDCtxKey ctxKey = "metrics_request_id"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_http_errors_total",
		Help: "Total number of HTTP requests resulting in server errors.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casefile_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casefile_db_latency_seconds",
		Help:    "Histogram of database operation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route"})

	syncPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_sync_passes_total",
		Help: "Sync passes by connection kind and result.",
	}, []string{"kind", "result"})

	syncItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_sync_items_total",
		Help: "Items processed by sync passes, by outcome.",
	}, []string{"kind", "outcome"})

	syncPassDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "casefile_sync_pass_duration_seconds",
		Help:    "Duration of sync passes.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_token_refresh_total",
		Help: "OAuth access token refresh attempts by result.",
	}, []string{"result"})

	realtimeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_realtime_events_total",
		Help: "Realtime events by name and delivery result.",
	}, []string{"event", "result"})

	realtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "casefile_realtime_clients",
		Help: "Currently connected realtime clients.",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "casefile_notifications_total",
		Help: "Notifications created by severity.",
	}, []string{"severity"})
)

// Middleware records request metrics and enriches the context with labels for downstream instrumentation.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routePattern(r)
			reqID := middleware.GetReqID(r.Context())

			ctx := context.WithValue(r.Context(), routeLabelKey, route)
			if reqID != "" {
				ctx = context.WithValue(ctx, requestIDCtxKey, reqID)
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			method := r.Method
			duration := time.Since(start).Seconds()
			statusCode := strconv.Itoa(status)

			httpRequestsTotal.WithLabelValues(method, route).Inc()
			httpRequestDuration.WithLabelValues(method, route, statusCode).Observe(duration)
			if status >= http.StatusInternalServerError {
				httpErrorsTotal.WithLabelValues(method, route, statusCode).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDBLatency records database latency for a given operation, associating it with request labels when available.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	route := routeFromContext(ctx)
	dbLatency.WithLabelValues(operation, route).Observe(time.Since(start).Seconds())
}

// ObserveSyncPass records a finished sync pass. result is "ok", "partial" or "error".
func ObserveSyncPass(kind, result string, start time.Time) {
	syncPassesTotal.WithLabelValues(kind, result).Inc()
	syncPassDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// IncSyncItem counts one item outcome (synced, skipped, failed).
func IncSyncItem(kind, outcome string) {
	syncItemsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncTokenRefresh counts a token refresh attempt.
func IncTokenRefresh(result string) {
	tokenRefreshTotal.WithLabelValues(result).Inc()
}

// IncRealtimeEvent counts an emitted realtime event per recipient.
func IncRealtimeEvent(event, result string) {
	realtimeEventsTotal.WithLabelValues(event, result).Inc()
}

// AddRealtimeClients adjusts the connected client gauge.
func AddRealtimeClients(delta float64) {
	realtimeClients.Add(delta)
}

func IncNotification(severity string) {
	notificationsTotal.WithLabelValues(severity).Inc()
}

// RequestIDFromContext extracts the request ID stored by the metrics middleware.
func RequestIDFromContext(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return reqID
	}
	return ""
}

func routeFromContext(ctx context.Context) string {
	if route, ok := ctx.Value(routeLabelKey).(string); ok && route != "" {
		return route
	}
	return "unknown"
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
