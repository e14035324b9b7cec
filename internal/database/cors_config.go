package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
)

// CorsConfigRepository handles CORS configuration in the settings collection.
type CorsConfigRepository struct {
	store docstore.Store
}

// NewCorsConfigRepository creates a new CORS config repository.
func NewCorsConfigRepository(store docstore.Store) *CorsConfigRepository {
	return &CorsConfigRepository{store: store}
}

// Get retrieves the default CORS config, or nil when none is stored.
func (r *CorsConfigRepository) Get(ctx context.Context) (*models.CorsConfig, error) {
	doc, err := r.store.Read(ctx, models.SettingsCollection, models.CorsSettingsID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cors config: %w", err)
	}
	return models.CorsConfigFromDocument(*doc), nil
}

// Set upserts the default CORS config. AllowedOrigins is comma-separated.
func (r *CorsConfigRepository) Set(ctx context.Context, c *models.CorsConfig) error {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return fmt.Errorf("allowed_origins cannot be empty")
	}
	data := map[string]any{
		models.FieldAllowedOrigins:   strings.TrimSpace(c.AllowedOrigins),
		models.FieldAllowCredentials: c.AllowCredentials,
		models.FieldMaxAge:           c.MaxAge,
		models.FieldUpdatedAt:        docstore.ServerTimestamp,
	}
	existing, err := r.Get(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		data[models.FieldCreatedAt] = docstore.ServerTimestamp
	}
	if err := r.store.Set(ctx, models.SettingsCollection, models.CorsSettingsID, data, true); err != nil {
		return fmt.Errorf("set cors config: %w", err)
	}
	return nil
}

// AllowedOriginsSlice returns allowed origins as a slice (split by comma).
func AllowedOriginsSlice(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
