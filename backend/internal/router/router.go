package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/itchan-dev/ideamarket/backend/internal/setup"
	"github.com/itchan-dev/ideamarket/shared/csrf"
	mw "github.com/itchan-dev/ideamarket/shared/middleware"
	"github.com/itchan-dev/ideamarket/shared/middleware/metrics"
)

// New creates the API router.
// Every route except health and metrics passes OptionalAuth first so the rate limiter can
// pick the tier from the caller's identity.
func New(deps *setup.Dependencies) http.Handler {
	cfg := deps.Config.Public
	h := deps.Handler
	authMw := deps.AuthMiddleware
	rateLimit := deps.RateLimit
	csrfMw := deps.CSRF

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(mw.SecurityHeaders(cfg.SecureCookies, mw.APIContentSecurityPolicy))
	r.Use(csrfMw.Issue())

	// An empty origin list would make cors allow everyone.
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization", csrf.HeaderName},
			ExposedHeaders:   []string{csrf.HeaderName, "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health and metrics
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(authMw.OptionalAuth())
		r.Use(rateLimit.Tiered())

		r.Route("/auth", func(r chi.Router) {
			r.Use(csrfMw.Protect())

			// register and login share the strict per-IP budget
			r.With(rateLimit.Strict()).Post("/register", h.Register)
			r.With(rateLimit.Strict()).Post("/login", h.Login)

			r.Post("/refresh", h.Refresh)
			r.Post("/logout", h.Logout)
			r.Get("/csrf", h.CSRFToken)
			r.With(authMw.NeedAuth()).Get("/me", h.Me)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMw.AdminOnly())
			r.Use(csrfMw.Strict())

			r.Post("/users/{userId}/revoke-tokens", h.RevokeUserTokens)
			r.Post("/blacklist/sweep", h.SweepBlacklist)
		})
	})

	return r
}
