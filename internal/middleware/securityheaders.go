package middleware

import (
	"net/http"
)

// apiHeaders are sent on every response. The API serves JSON only and never
// needs the browser's camera, microphone or geolocation.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the API security headers. Responses to requests that
// carry credentials are marked uncacheable since they hold per-user data
// (owned listings, identity grants). HSTS is only sent over TLS when enabled.
func SecurityHeaders(enableHSTS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if r.Header.Get("Authorization") != "" {
				h.Set("Cache-Control", "no-store")
				h.Add("Vary", "Authorization")
			}
			if enableHSTS && r.TLS != nil {
				h.Set("Strict-Transport-Security", hstsValue)
			}

			next.ServeHTTP(w, r)
		})
	}
}
