package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/nemisolv/englearn-auth/pkg/errors"
	"github.com/nemisolv/englearn-auth/pkg/httputil"
)

// MountProfiler registers the pprof endpoints under /debug/pprof on r. The
// caller is expected to wrap r with InternalOnly.
func MountProfiler(r chi.Router) {
	r.HandleFunc("/debug/pprof/*", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

// InternalOnly restricts operational endpoints (metrics, profiling) to
// callers whose socket address falls in one of prefixes. Forwarding headers
// are ignored here. Unparseable prefixes are logged and skipped.
func InternalOnly(prefixes []string, logger *slog.Logger) func(http.Handler) http.Handler {
	allowed := make([]netip.Prefix, 0, len(prefixes))
	for _, p := range prefixes {
		prefix, err := netip.ParsePrefix(p)
		if err != nil {
			logger.Warn("invalid internal CIDR, skipping",
				slog.String("cidr", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		allowed = append(allowed, prefix.Masked())
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			addr, err := netip.ParseAddr(host)
			if err == nil && contains(allowed, addr.Unmap()) {
				next.ServeHTTP(w, r)
				return
			}

			logger.WarnContext(r.Context(), "internal endpoint denied",
				slog.String("ip", host),
				slog.String("path", r.URL.Path),
			)
			httputil.WriteError(w, r, apperrors.AccessDenied("endpoint restricted to internal networks"), logger)
		})
	}
}

func contains(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
