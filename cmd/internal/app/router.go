package app

import (
	"net/http"
	"time"

	"hearth/cmd/internal/auth/authn"
	"hearth/cmd/internal/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

func (a *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(withRequestLogging(a.log))
	r.Use(middleware.Recoverer)
	r.Use(withSecurityHeaders)
	if a.metrics != nil {
		r.Use(a.metrics.middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: a.cfg.CORSAllowCredentials,
		MaxAge:           a.cfg.CORSMaxAge,
	}))
	if a.cfg.RatePerMinute > 0 {
		r.Use(httprate.Limit(a.cfg.RatePerMinute, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			}),
		))
	}

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	a.auth.Routes(r)
	r.Method(http.MethodGet, "/auth/events", a.events)

	bearer := authn.Middleware(a.sessions, authn.WithLogger(a.log))
	r.Route("/rest", func(r chi.Router) {
		r.Route("/profiles", func(r chi.Router) {
			r.Use(authn.Middleware(a.sessions, authn.AllowProvisioning(), authn.WithLogger(a.log)))
			a.profiles.Routes(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(bearer)
			a.household.Routes(r)
		})
	})

	r.With(authn.Middleware(a.sessions, authn.WithLogger(a.log), authn.WithUnauthorized(a.chat.Unauthorized))).
		Method(http.MethodPost, "/functions/v1/chat", a.chat)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return withTracing(a.cfg, r)
}

func (a *App) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz reports not ready when the database cannot be reached, or when
// a database is required and the app runs in memory.
func (a *App) handleReadyz(w http.ResponseWriter, r *http.Request) {
	switch {
	case a.pool == nil && a.cfg.ReadinessRequireDB:
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "db": "disabled"})
		return
	case a.pool != nil:
		if err := PingDB(r.Context(), a.pool, time.Second); err != nil {
			a.log.Warn("readyz.db.fail", "err", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "db": "unreachable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "db": "ok"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "db": "memory"})
}
