package request

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/quickfix/quickfix-api/internal/services/identity"
)

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		wantIP  string
	}{
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "", "1.2.3.4"},
		{"x-forwarded-for first", map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8 "}, "", "1.2.3.4"},
		{"x-real-ip", map[string]string{"X-Real-IP": "9.9.9.9"}, "", "9.9.9.9"},
		{"remote addr", nil, "10.0.0.1:12345", "10.0.0.1:12345"},
		{"xff over xri", map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "9.9.9.9"}, "", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if tt.remote != "" {
				r.RemoteAddr = tt.remote
			}
			got := ClientIP(r)
			if got != tt.wantIP {
				t.Errorf("ClientIP() = %q, want %q", got, tt.wantIP)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer", "Bearer abc.def", "abc.def"},
		{"lowercase scheme", "bearer abc", "abc"},
		{"padded", "Bearer   abc  ", "abc"},
		{"basic", "Basic dXNlcg==", ""},
		{"scheme only", "Bearer", ""},
		{"missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(r); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()
	id := &identity.Identity{UID: "u1", Email: "a@b.c"}
	ctx := WithIdentity(context.Background(), id, "tok")
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	if got := IdentityFromContext(r); got != id {
		t.Errorf("IdentityFromContext() = %p, want %p", got, id)
	}
	if got := UID(r); got != "u1" {
		t.Errorf("UID() = %q, want u1", got)
	}
	if got := TokenFromContext(r); got != "tok" {
		t.Errorf("TokenFromContext() = %q, want tok", got)
	}
}

func TestIdentityFromContext_Anonymous(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest("GET", "/", nil)
	if got := IdentityFromContext(r); got != nil {
		t.Errorf("IdentityFromContext() = %+v, want nil", got)
	}
	if UID(r) != "" || TokenFromContext(r) != "" {
		t.Error("anonymous request must have no uid or token")
	}
}

func TestIdentityFromContext_WrongType(t *testing.T) {
	t.Parallel()
	ctx := context.WithValue(context.Background(), IdentityContextKey(), "not an identity")
	r := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	if got := IdentityFromContext(r); got != nil {
		t.Errorf("IdentityFromContext() = %+v, want nil when wrong type", got)
	}
}
