package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Strob0t/tenantdesk/internal/logger"
)

type sessionCtxKey struct{}

type sessionInfo struct {
	cookie    string
	principal string
}

// Session reads the session cookie named cookieName and stores it, together
// with its principal key, in the request context. Requests without the
// cookie pass through unchanged. keyOf derives the principal key.
func Session(cookieName string, keyOf func(cookie string) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || strings.TrimSpace(c.Value) == "" {
				next.ServeHTTP(w, r)
				return
			}
			info := sessionInfo{cookie: c.Value, principal: keyOf(c.Value)}
			ctx := context.WithValue(r.Context(), sessionCtxKey{}, info)
			ctx = logger.WithPrincipal(ctx, info.principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionCookie returns the raw session cookie stored by Session.
func SessionCookie(ctx context.Context) (string, bool) {
	info, ok := ctx.Value(sessionCtxKey{}).(sessionInfo)
	return info.cookie, ok
}

// PrincipalKey returns the principal key stored by Session.
func PrincipalKey(ctx context.Context) (string, bool) {
	info, ok := ctx.Value(sessionCtxKey{}).(sessionInfo)
	return info.principal, ok
}
