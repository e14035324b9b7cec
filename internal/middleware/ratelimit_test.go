package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/quickfix/quickfix-api/internal/models"
)

type memRatelimitSource struct {
	mu     sync.Mutex
	cfg    *models.RatelimitConfig
	getErr error
	sets   int
}

func (m *memRatelimitSource) Get(context.Context) (*models.RatelimitConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.cfg == nil {
		return nil, nil
	}
	c := *m.cfg
	return &c, nil
}

func (m *memRatelimitSource) Set(_ context.Context, c *models.RatelimitConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	cp := *c
	m.cfg = &cp
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimitReloader_SeedsDefault(t *testing.T) {
	t.Parallel()

	source := &memRatelimitSource{}
	r, err := NewRateLimitReloader(nil, source, "2-M", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	r.Middleware()(okHandler())

	if source.sets != 1 || source.cfg.Rate != "2-M" {
		t.Errorf("default rate not seeded: %+v", source.cfg)
	}
	if r.Rate() != "2-M" {
		t.Errorf("Rate() = %q", r.Rate())
	}
}

func TestRateLimitReloader_EnforcesAndReloads(t *testing.T) {
	t.Parallel()

	source := &memRatelimitSource{cfg: &models.RatelimitConfig{Rate: "1-M"}}
	r, err := NewRateLimitReloader(nil, source, "", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	h := r.Middleware()(okHandler())

	if w := hit(h, "198.51.100.1"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	w := hit(h, "198.51.100.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "RATE_LIMITED" {
		t.Errorf("error = %q", body.Error)
	}
	if w := hit(h, "198.51.100.2"); w.Code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", w.Code)
	}

	source.mu.Lock()
	source.cfg.Rate = "100-M"
	source.mu.Unlock()
	r.Reload(context.Background())
	if r.Rate() != "100-M" {
		t.Errorf("Rate() after reload = %q", r.Rate())
	}
}

func TestRateLimitReloader_FallsBack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source *memRatelimitSource
	}{
		{name: "load error", source: &memRatelimitSource{getErr: errors.New("store down")}},
		{name: "unparseable rate", source: &memRatelimitSource{cfg: &models.RatelimitConfig{Rate: "often"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewRateLimitReloader(nil, tt.source, "7-S", nil, 0)
			if err != nil {
				t.Fatal(err)
			}
			r.Middleware()(okHandler())
			if r.Rate() != "7-S" {
				t.Errorf("Rate() = %q, want default", r.Rate())
			}
		})
	}
}

func TestAuthRateLimit(t *testing.T) {
	t.Parallel()

	if _, err := AuthRateLimit(nil, "lots"); err == nil {
		t.Error("expected invalid rate error")
	}

	mw, err := AuthRateLimit(nil, "1-H")
	if err != nil {
		t.Fatal(err)
	}
	h := mw(okHandler())
	if w := hit(h, "192.0.2.1"); w.Code != http.StatusOK {
		t.Fatalf("first status = %d", w.Code)
	}
	if w := hit(h, "192.0.2.1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", w.Code)
	}
}
