package middleware

import (
	"context"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"go.uber.org/zap"
)

// accessTokenParam carries the token on websocket upgrades, which cannot set headers.
const accessTokenParam = "access_token"

// TokenVerifier resolves an access token to its identity; identity.Service implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Identity, error)
}

// tokenFromRequest returns the bearer token, falling back to the
// access_token query parameter only for websocket upgrades.
func tokenFromRequest(r *http.Request) string {
	if token := request.BearerToken(r); token != "" {
		return token
	}
	if isWebSocketUpgrade(r) {
		return strings.TrimSpace(r.URL.Query().Get(accessTokenParam))
	}
	return ""
}

// Auth requires a valid access token and attaches its identity to the request.
func Auth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				respondErrorJSON(w, r, http.StatusUnauthorized, "AUTH_FAILURE", "Missing bearer token", logger)
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if !identity.IsAuthFailure(err) {
					logger.Error("token_verification_failed", zap.Error(err))
				}
				respondErrorJSON(w, r, http.StatusUnauthorized, "AUTH_FAILURE", identity.ErrInvalidToken.Error(), logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithIdentity(r.Context(), id, token)))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is presented and
// otherwise serves the request anonymously.
func OptionalAuth(verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("optional_auth_ignored_token", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(request.WithIdentity(r.Context(), id, token)))
		})
	}
}

// headerContainsToken reports whether any comma-separated value of header
// name equals token, ignoring case.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h[textproto.CanonicalMIMEHeaderKey(name)] {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
