package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{name: "GET passes", method: http.MethodGet, want: http.StatusOK},
		{name: "JSON POST", method: http.MethodPost, contentType: "application/json; charset=utf-8", body: "{}", want: http.StatusOK},
		{name: "bodiless POST", method: http.MethodPost, want: http.StatusOK},
		{name: "body without type", method: http.MethodPost, body: "{}", want: http.StatusBadRequest},
		{name: "form body", method: http.MethodPut, contentType: "application/x-www-form-urlencoded", body: "a=b", want: http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tt.method, "/api/v1/me/providers", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			ContentType(okHandler()).ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMaxRequestSize(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/providers", strings.NewReader(strings.Repeat("x", 32)))
	w := httptest.NewRecorder()
	MaxRequestSize(16)(okHandler()).ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
			w.WriteHeader(http.StatusOK)
		}
	})
	h := Timeout(20 * time.Millisecond)(slow)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}

	upgraded := httptest.NewRequest(http.MethodGet, "/api/v1/me/providers/stream", nil)
	upgraded.Header.Set("Connection", "Upgrade")
	upgraded.Header.Set("Upgrade", "websocket")
	passthrough := Timeout(20 * time.Millisecond)(okHandler())
	w = httptest.NewRecorder()
	passthrough.ServeHTTP(w, upgraded)
	if w.Code != http.StatusOK {
		t.Errorf("websocket upgrade status = %d, want 200", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	SecurityHeaders(true)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS must only be sent over TLS")
	}
	if w.Header().Get("Cache-Control") != "" {
		t.Error("anonymous responses may be cached")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/providers", nil)
	req.Header.Set("Authorization", "Bearer token")
	w = httptest.NewRecorder()
	SecurityHeaders(false)(okHandler()).ServeHTTP(w, req)
	if got := w.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if !strings.Contains(w.Header().Get("Permissions-Policy"), "geolocation=()") {
		t.Error("geolocation must be disabled")
	}
}
