// Package httpapi exposes the streamauth engine over HTTP with a chi router.
//
// Responses use a JSON envelope: {"status":"success","data":...} or
// {"status":"error","code":...,"message":...}. Engine sentinels map to
// status codes in [mapError]. Refresh tokens travel in an HttpOnly cookie
// scoped to /auth and in the response body.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/streamauth"
	"github.com/MrEthical07/streamauth/metrics/export/prometheus"
	"github.com/MrEthical07/streamauth/middleware"
	"github.com/go-chi/chi/v5"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "streamauth_refresh"

// Options configures [NewRouter].
type Options struct {
	Logger *slog.Logger
	// Metrics is served on GET /metrics. Nil uses the Prometheus exporter.
	Metrics http.Handler
	// SecureCookies marks the refresh cookie Secure.
	SecureCookies bool
	// TrustForwardedFor reads the client address from X-Forwarded-For.
	TrustForwardedFor bool
	// StreamKeepAlive is the comment interval on viewer streams. Default 15s.
	StreamKeepAlive time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	engine    *streamauth.Engine
	logger    *slog.Logger
	secure    bool
	keepAlive time.Duration
}

// NewRouter registers all routes and the middleware stack.
func NewRouter(engine *streamauth.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	keepAlive := opts.StreamKeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = prometheus.New(engine).Handler()
	}

	h := &Handler{
		engine:    engine,
		logger:    logger.With("module", "http"),
		secure:    opts.SecureCookies,
		keepAlive: keepAlive,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.ClientMeta(opts.TrustForwardedFor))

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Post("/logout-all", h.logoutAll)
			r.Get("/devices", h.listDevices)
			r.Delete("/devices/{deviceID}", h.logoutDevice)
		})
	})

	r.Route("/watch/{contentID}", func(r chi.Router) {
		r.Get("/viewers", h.viewerCount)
		r.Get("/viewers/stream", h.viewerStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(engine))
			r.Post("/start", h.startWatching)
			r.Post("/stop", h.stopWatching)
			r.Post("/heartbeat", h.heartbeat)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"state": "ok"})
}
