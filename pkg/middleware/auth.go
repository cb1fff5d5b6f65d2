package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
	"github.com/nemisolv/englearn-auth/pkg/httputil"
)

type contextKeyType string

const principalKey contextKeyType = "principal"

// Principal is the caller identity established from a validated access token.
type Principal struct {
	UserID    int64
	Email     string
	JTI       string
	ExpiresAt time.Time
}

// TokenValidator validates a bearer token and returns the principal it names.
type TokenValidator func(ctx context.Context, token string) (*Principal, error)

// Authenticate rejects requests without a valid bearer access token and
// stores the resulting Principal in the request context.
func Authenticate(validate TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthenticated("missing or malformed bearer token"), logger)
				return
			}

			principal, err := validate(r.Context(), token)
			if err != nil {
				httputil.WriteError(w, r, err, logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// UserIDFromContext returns the authenticated user id, or 0.
func UserIDFromContext(ctx context.Context) int64 {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID
	}
	return 0
}
