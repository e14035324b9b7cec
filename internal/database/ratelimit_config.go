package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
)

// RatelimitConfigRepository handles rate limit configuration in the settings collection.
type RatelimitConfigRepository struct {
	store docstore.Store
}

// NewRatelimitConfigRepository creates a new ratelimit config repository.
func NewRatelimitConfigRepository(store docstore.Store) *RatelimitConfigRepository {
	return &RatelimitConfigRepository{store: store}
}

// Get retrieves the default rate limit config, or nil when none is stored.
func (r *RatelimitConfigRepository) Get(ctx context.Context) (*models.RatelimitConfig, error) {
	doc, err := r.store.Read(ctx, models.SettingsCollection, models.RatelimitSettingsID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ratelimit config: %w", err)
	}
	return models.RatelimitConfigFromDocument(*doc), nil
}

// Set upserts the default rate limit config. Rate format: e.g. "5-S", "100-M".
func (r *RatelimitConfigRepository) Set(ctx context.Context, c *models.RatelimitConfig) error {
	rate := strings.TrimSpace(c.Rate)
	if rate == "" {
		return fmt.Errorf("rate cannot be empty")
	}
	data := map[string]any{
		models.FieldRate:      rate,
		models.FieldUpdatedAt: docstore.ServerTimestamp,
	}
	existing, err := r.Get(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		data[models.FieldCreatedAt] = docstore.ServerTimestamp
	}
	if err := r.store.Set(ctx, models.SettingsCollection, models.RatelimitSettingsID, data, true); err != nil {
		return fmt.Errorf("set ratelimit config: %w", err)
	}
	return nil
}
