package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/blogem/ha-gateway/userctx"
)

// CallerIdentity stores the caller's IP address in the request context.
// Forwarding headers are only honored when trustProxy is set, otherwise any client could pick its own rate limit bucket.
func CallerIdentity(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := userctx.SetCaller(r.Context(), GetIPAddress(r, trustProxy))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIPAddress extracts the client IP, checking X-Forwarded-For and X-Real-IP first when trustProxy is set
func GetIPAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// Check X-Forwarded-For header (proxy/load balancer)
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// Take first IP if multiple
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}

		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
