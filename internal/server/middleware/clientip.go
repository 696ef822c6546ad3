package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/replysmith/replysmith/internal/core"
)

// DefaultTrustedIPHeader is the platform header consulted first when
// resolving the client address. It is set by the fronting proxy and cannot
// be forged by clients that go through it.
const DefaultTrustedIPHeader = "X-NF-Client-Connection-IP"

// clientIPContextKey is a custom type to avoid context key collisions
type clientIPContextKey string

const ClientIPContextKey clientIPContextKey = "client_ip"

// ResolveClientIP determines the client address for rate limiting.
// Precedence: the trusted platform header, then the first entry of
// X-Forwarded-For, then the shared unknown bucket. The remote socket address
// is deliberately not used; behind a proxy it identifies the proxy, and
// collapsing those requests into one bucket is safer than treating the proxy
// as one client.
func ResolveClientIP(r *http.Request, trustedHeader string) string {
	if trustedHeader == "" {
		trustedHeader = DefaultTrustedIPHeader
	}

	if ip := strings.TrimSpace(r.Header.Get(trustedHeader)); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	return core.UnknownIP
}

// ClientIP middleware resolves the client address once and stores it in the
// request context.
func ClientIP(trustedHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ResolveClientIP(r, trustedHeader)
			ctx := context.WithValue(r.Context(), ClientIPContextKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientIP retrieves the resolved client address from context. Returns
// the unknown bucket when the middleware did not run.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	return core.UnknownIP
}
