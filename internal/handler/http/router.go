package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spartak030506-hash/shop-backend/internal/domain"
	"github.com/spartak030506-hash/shop-backend/pkg/health"
	"github.com/spartak030506-hash/shop-backend/pkg/middleware"
)

// RouterConfig bundles the dependencies of the HTTP router.
type RouterConfig struct {
	AuthHandler   *AuthHandler
	UserHandler   *UserHandler
	Health        *health.Handler
	ValidateToken middleware.TokenValidator
	Logger        *slog.Logger
	ServiceName   string
}

// NewRouter builds the chi router with the full middleware chain and all
// routes mounted.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(CORS)
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authed := middleware.Auth(cfg.ValidateToken)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", cfg.AuthHandler.Register)
			r.Post("/login", cfg.AuthHandler.Login)
			r.Post("/refresh", cfg.AuthHandler.Refresh)
			r.Post("/logout", cfg.AuthHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(authed)
				r.Post("/logout-all", cfg.AuthHandler.LogoutAll)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authed)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", cfg.UserHandler.GetMe)
				r.Patch("/", cfg.UserHandler.UpdateMe)
				r.Delete("/", cfg.UserHandler.DeleteMe)
				r.Post("/change-password", cfg.AuthHandler.ChangePassword)
			})

			r.Group(func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/", cfg.UserHandler.List)
				r.Get("/{id}", cfg.UserHandler.GetByID)
				r.Delete("/{id}", cfg.UserHandler.Delete)
			})
		})
	})

	return r
}
