package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nemisolv/englearn-auth/pkg/logger"
)

// RequestLogger stores a request-scoped logger, enriched with correlation,
// user and trace ids, in the context for logger.FromContext. Mount it after
// RequestLogging and Tracing; mount it again after Authenticate to pick up
// the user id.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := UserIDFromContext(ctx); id != 0 {
				ctx = logger.WithUserID(ctx, strconv.FormatInt(id, 10))
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
