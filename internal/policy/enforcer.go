package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nemisolv/englearn-auth/internal/domain"
	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
	"github.com/nemisolv/englearn-auth/pkg/httputil"
	"github.com/nemisolv/englearn-auth/pkg/middleware"
)

var decisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_authorization_decisions_total",
		Help: "Authorization decisions by outcome",
	},
	[]string{"decision"},
)

// ScopeResolver resolves the live role -> permissions map of a user.
type ScopeResolver interface {
	ResolveUserScopes(ctx context.Context, userID int64) (domain.Scopes, error)
}

// Enforcer checks requirements against scopes resolved on every call.
type Enforcer struct {
	resolver ScopeResolver
	logger   *slog.Logger
}

// NewEnforcer creates a new enforcer.
func NewEnforcer(resolver ScopeResolver, logger *slog.Logger) *Enforcer {
	return &Enforcer{resolver: resolver, logger: logger}
}

// Check returns nil when userID satisfies req, AccessDenied when it does
// not, and Unauthenticated when the user is unknown.
func (e *Enforcer) Check(ctx context.Context, userID int64, req Requirement) error {
	if userID <= 0 {
		decisionsTotal.WithLabelValues("unauthenticated").Inc()
		return apperrors.Unauthenticated("authentication required")
	}

	scopes, err := e.resolver.ResolveUserScopes(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) || errors.Is(err, apperrors.ErrNotFound) {
			decisionsTotal.WithLabelValues("unauthenticated").Inc()
			return apperrors.Unauthenticated("user no longer exists")
		}
		decisionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("resolve scopes: %w", err)
	}

	if !req.SatisfiedBy(scopes) {
		decisionsTotal.WithLabelValues("deny").Inc()
		return apperrors.AccessDenied("insufficient permissions")
	}
	decisionsTotal.WithLabelValues("allow").Inc()
	return nil
}

// Require returns middleware that enforces req for the principal stored by
// middleware.Authenticate.
func (e *Enforcer) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := middleware.UserIDFromContext(r.Context())

			if err := e.Check(r.Context(), userID, req); err != nil {
				if errors.Is(err, apperrors.ErrAccessDenied) || errors.Is(err, apperrors.ErrUnauthenticated) {
					e.logger.WarnContext(r.Context(), "authorization denied",
						slog.Int64("user_id", userID),
						slog.String("requirement", req.String()),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
				}
				httputil.WriteError(w, r, err, e.logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
