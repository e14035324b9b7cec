package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
)

// ErrProviderNotFound is returned when a listing does not exist.
var ErrProviderNotFound = errors.New("provider not found")

// ProviderRepository handles provider listing documents
type ProviderRepository struct {
	store docstore.Store
}

// NewProviderRepository creates a new provider repository
func NewProviderRepository(store docstore.Store) *ProviderRepository {
	return &ProviderRepository{store: store}
}

// Create stores a new listing and returns its id
func (r *ProviderRepository) Create(ctx context.Context, data map[string]any) (string, error) {
	id, err := r.store.Create(ctx, models.ProvidersCollection, data)
	if err != nil {
		return "", fmt.Errorf("failed to create provider: %w", err)
	}
	return id, nil
}

// Update overwrites the supplied fields of a listing
func (r *ProviderRepository) Update(ctx context.Context, id string, partial map[string]any) error {
	err := r.store.Update(ctx, models.ProvidersCollection, id, partial)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrProviderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	return nil
}

// GetByID retrieves a listing by id
func (r *ProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	doc, err := r.store.Read(ctx, models.ProvidersCollection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrProviderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	p := models.ProviderFromDocument(*doc)
	return &p, nil
}

// Delete removes a listing
func (r *ProviderRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, models.ProvidersCollection, id); err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}
	return nil
}

// OwnerQuery selects every listing owned by uid, newest first.
func OwnerQuery(uid string) docstore.Query {
	return docstore.Query{
		Collection: models.ProvidersCollection,
		Filters:    []docstore.Filter{{Field: models.FieldUID, Value: uid}},
		OrderBy:    []docstore.Order{{Field: models.FieldCreatedAt, Direction: docstore.Desc}},
	}
}

// ListByOwner retrieves every listing owned by uid
func (r *ProviderRepository) ListByOwner(ctx context.Context, uid string) ([]models.Provider, error) {
	docs, err := r.store.Query(ctx, OwnerQuery(uid))
	if err != nil {
		return nil, fmt.Errorf("failed to list providers by owner: %w", err)
	}
	return models.ProvidersFromDocuments(docs), nil
}

// ListAll retrieves every listing, for maintenance jobs
func (r *ProviderRepository) ListAll(ctx context.Context) ([]models.Provider, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: models.ProvidersCollection})
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return models.ProvidersFromDocuments(docs), nil
}
