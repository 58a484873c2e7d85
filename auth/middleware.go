package auth

import (
	"context"
	"net/http"
	"strings"
)

// SessionCookie is the cookie carrying the JWT for browser clients. API
// clients may send the same token in an Authorization Bearer header.
const SessionCookie = "parley_session"

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller identity, injected into the
// request context by Middleware and read back by handlers.
type Principal struct {
	UserID string
}

// PrincipalFrom extracts the authenticated identity from the context.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// WithPrincipal returns a context carrying the given identity. Exposed for
// tests and for the websocket handler, which authenticates before upgrade.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// TokenFromRequest finds the session token in the cookie or the
// Authorization header, cookie first.
func TokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// Middleware validates the session token and injects the caller identity
// into the request context. Requests without a valid token are rejected
// before reaching any handler.
func Middleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := TokenFromRequest(r)
			if tokenStr == "" {
				http.Error(w, "authorization token is missing", http.StatusForbidden)
				return
			}

			claims, err := tokens.Validate(tokenStr)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusForbidden)
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UserID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
