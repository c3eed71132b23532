package routes

import (
	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/middleware"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// adminRequestsPerMinute bounds authenticated admin API traffic per operator
const adminRequestsPerMinute = 120

// Handlers groups the HTTP handlers. Auth and Admin are nil when the admin API is disabled.
type Handlers struct {
	Health *handlers.HealthHandler
	Guard  *handlers.GuardHandler
	Auth   *handlers.AuthHandler
	Admin  *handlers.AdminHandler
}

// Options carries the settings routes need beyond the handlers
type Options struct {
	TokenManager           *auth.TokenManager
	IPConfig               *pkghttp.IPConfig
	GuardRequestsPerMinute int
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	router.Get("/health", h.Health.Health)

	// Guard API, called by authenticators. A coarse per-IP limit sits in front;
	// the lockout itself is the guard's job.
	router.Route("/v1/guard", func(r chi.Router) {
		if opts.GuardRequestsPerMinute > 0 {
			r.Use(middleware.RateLimitByIP(middleware.RateLimitConfig{
				RequestsPerMinute: opts.GuardRequestsPerMinute,
				IPConfig:          opts.IPConfig,
			}))
		}
		r.Post("/authorize", h.Guard.Authorize)
		r.Post("/failures", h.Guard.RecordFailure)
		r.Post("/successes", h.Guard.RecordSuccess)
	})

	if h.Admin == nil || h.Auth == nil || opts.TokenManager == nil {
		return
	}

	router.Route("/v1/admin", func(r chi.Router) {
		r.With(middleware.RateLimitByIP(middleware.DefaultAdminLoginRateLimit(opts.IPConfig))).
			Post("/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(opts.TokenManager))
			r.Use(middleware.RateLimitByAdmin(middleware.RateLimitConfig{
				RequestsPerMinute: adminRequestsPerMinute,
				IPConfig:          opts.IPConfig,
			}))

			r.Get("/policy", h.Admin.GetPolicy)

			r.Get("/clients", h.Admin.ListClients)
			r.Get("/clients/lookup", h.Admin.LookupClient)
			r.Get("/clients/{id}/details", h.Admin.ListDetails)
			r.Delete("/clients/{id}", h.Admin.DeleteClient)
			r.Delete("/details/{id}", h.Admin.DeleteDetail)

			r.Get("/access-list", h.Admin.ListAccessList)
			r.Post("/access-list", h.Admin.AddAccessListEntry)
			r.Delete("/access-list/{listType}/{clientKey}", h.Admin.RemoveAccessListEntry)
		})
	})
}
