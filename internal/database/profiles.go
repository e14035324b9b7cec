package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
)

// ProfileRepository handles users/{uid} profile documents
type ProfileRepository struct {
	store docstore.Store
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(store docstore.Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// Ensure creates the profile for uid if it does not exist yet. Existing
// profiles are never modified. Reports whether a profile was created.
func (r *ProfileRepository) Ensure(ctx context.Context, uid, email, phone string) (bool, error) {
	_, err := r.store.Read(ctx, models.UsersCollection, uid)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return false, fmt.Errorf("failed to read profile: %w", err)
	}
	err = r.store.Set(ctx, models.UsersCollection, uid, map[string]any{
		"email":               email,
		"phone":               phone,
		models.FieldCreatedAt: docstore.ServerTimestamp,
	}, false)
	if err != nil {
		return false, fmt.Errorf("failed to create profile: %w", err)
	}
	return true, nil
}

// GetByUID retrieves a profile, or nil when absent
func (r *ProfileRepository) GetByUID(ctx context.Context, uid string) (*models.Profile, error) {
	doc, err := r.store.Read(ctx, models.UsersCollection, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	p := models.ProfileFromDocument(*doc)
	return &p, nil
}
