package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nemisolv/englearn-auth/internal/auth"
	"github.com/nemisolv/englearn-auth/internal/domain"
	"github.com/nemisolv/englearn-auth/internal/policy"
	"github.com/nemisolv/englearn-auth/internal/service"
	"github.com/nemisolv/englearn-auth/pkg/health"
	"github.com/nemisolv/englearn-auth/pkg/middleware"
)

// RouterConfig holds the HTTP-layer settings of the router.
type RouterConfig struct {
	ServiceName   string
	CORS          middleware.CORSConfig
	InternalCIDRs []string
	EnablePprof   bool
}

// Services bundles the application services the router exposes.
type Services struct {
	Auth      *service.AuthService
	Sessions  *service.SessionService
	RBAC      *service.RBACService
	Enforcer  *policy.Enforcer
	Limiter   *RateLimiter
	ClientIPs *auth.ClientIPResolver
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(svc Services, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	// Operational endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOnly(cfg.InternalCIDRs, logger))
		r.Handle("/metrics", promhttp.Handler())
		if cfg.EnablePprof {
			middleware.MountProfiler(r)
		}
	})

	if svc.ClientIPs == nil {
		svc.ClientIPs = auth.NewClientIPResolver(nil)
	}

	authenticate := middleware.Authenticate(svc.Sessions.Authenticate, logger)
	authHandler := NewAuthHandler(svc.Auth, svc.Sessions, svc.RBAC, svc.ClientIPs, logger)
	adminHandler := NewAdminHandler(svc.Sessions, svc.RBAC, logger)
	rbacHandler := NewRBACHandler(svc.RBAC, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Credential endpoints (public)
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.With(svc.Limiter.Middleware).Post("/login", authHandler.Login)
			r.With(svc.Limiter.Middleware).Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		// Session management (access token required)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequestLogger(logger))
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Get("/sessions", authHandler.ListSessions)
			r.Get("/me/scopes", authHandler.MyScopes)
		})
	})

	r.Route("/api/v1/admin/users/{id}", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequestLogger(logger))

		r.With(svc.Enforcer.Require(policy.AnyPermission(domain.PermUserUpdate, domain.PermAdminAll))).
			Delete("/sessions", adminHandler.RevokeUserSessions)
		r.With(svc.Enforcer.Require(policy.ResourcePermission("user", "read"))).
			Get("/scopes", adminHandler.UserScopes)

		r.Group(func(r chi.Router) {
			r.Use(svc.Enforcer.Require(policy.Role(domain.RoleAdmin)))
			r.Post("/roles/{role}", adminHandler.AssignRole)
			r.Delete("/roles/{role}", adminHandler.RemoveRole)
		})
	})

	r.Route("/api/v1/rbac", func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequestLogger(logger))
		r.Use(svc.Enforcer.Require(policy.Permission(domain.PermUserRead)))

		r.Get("/roles", rbacHandler.ListRoles)
		r.Get("/permissions", rbacHandler.ListPermissions)
	})

	return r
}
