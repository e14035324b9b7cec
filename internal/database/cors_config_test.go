package database

import (
	"context"
	"testing"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
)

func TestAllowedOriginsSlice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", nil},
		{"single", "https://a.example.com", []string{"https://a.example.com"}},
		{"comma", "https://a.com, https://b.com", []string{"https://a.com", "https://b.com"}},
		{"dedup", "x, x, y", []string{"x", "y"}},
		{"trim", "  a  ,  b  ", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AllowedOriginsSlice(tt.raw)
			if len(got) != len(tt.want) {
				t.Errorf("AllowedOriginsSlice(%q) length = %d, want %d", tt.raw, len(got), len(tt.want))
				return
			}
			seen := make(map[string]bool)
			for _, s := range got {
				seen[s] = true
			}
			for _, w := range tt.want {
				if !seen[w] {
					t.Errorf("AllowedOriginsSlice(%q) missing %q", tt.raw, w)
				}
			}
		})
	}
}

func TestCorsConfigRepository_SetGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewCorsConfigRepository(docstore.NewMemoryStore())

	got, err := repo.Get(ctx)
	if err != nil || got != nil {
		t.Fatalf("Get() on empty store = %v, %v", got, err)
	}
	if err := repo.Set(ctx, &models.CorsConfig{AllowedOrigins: ""}); err == nil {
		t.Error("Set() with empty origins should fail")
	}
	if err := repo.Set(ctx, &models.CorsConfig{AllowedOrigins: " https://quickfix.app ", AllowCredentials: true, MaxAge: 600}); err != nil {
		t.Fatal(err)
	}
	got, err = repo.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.AllowedOrigins != "https://quickfix.app" || !got.AllowCredentials || got.MaxAge != 600 {
		t.Errorf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", got)
	}
}

func TestRatelimitConfigRepository_SetGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRatelimitConfigRepository(docstore.NewMemoryStore())
	if err := repo.Set(ctx, &models.RatelimitConfig{Rate: "  "}); err == nil {
		t.Error("Set() with blank rate should fail")
	}
	if err := repo.Set(ctx, &models.RatelimitConfig{Rate: "100-M"}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Get(ctx)
	if err != nil || got == nil || got.Rate != "100-M" {
		t.Errorf("Get() = %+v, %v", got, err)
	}
}
