// Package request carries per-request values between middleware and handlers.
package request

import (
	"context"
	"net/http"
	"strings"

	"github.com/quickfix/quickfix-api/internal/services/identity"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
	tokenContextKey    contextKey = "token"
)

// IdentityContextKey returns the context key used for the identity. Exposed for tests that inject non-identity values.
func IdentityContextKey() contextKey { return identityContextKey }

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// WithIdentity returns a context carrying the verified identity and its token.
func WithIdentity(ctx context.Context, id *identity.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, id)
	return context.WithValue(ctx, tokenContextKey, token)
}

// IdentityFromContext returns the verified identity, or nil if missing or wrong type.
func IdentityFromContext(r *http.Request) *identity.Identity {
	id, _ := r.Context().Value(identityContextKey).(*identity.Identity)
	return id
}

// UID returns the verified identity's uid, or "" for anonymous requests.
func UID(r *http.Request) string {
	if id := IdentityFromContext(r); id != nil {
		return id.UID
	}
	return ""
}

// TokenFromContext returns the verified access token, or "".
func TokenFromContext(r *http.Request) string {
	t, _ := r.Context().Value(tokenContextKey).(string)
	return t
}
