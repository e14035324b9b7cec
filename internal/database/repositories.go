package database

import (
	"context"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
)

// ProviderRepositoryInterface defines provider listing persistence.
// This interface enables mock implementations in handler and worker tests.
type ProviderRepositoryInterface interface {
	Create(ctx context.Context, data map[string]any) (string, error)
	Update(ctx context.Context, id string, partial map[string]any) error
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, uid string) ([]models.Provider, error)
	ListAll(ctx context.Context) ([]models.Provider, error)
}

// ProfileRepositoryInterface defines user profile persistence.
type ProfileRepositoryInterface interface {
	Ensure(ctx context.Context, uid, email, phone string) (bool, error)
	GetByUID(ctx context.Context, uid string) (*models.Profile, error)
}

// Ensure concrete types implement the interfaces
var (
	_ ProviderRepositoryInterface = (*ProviderRepository)(nil)
	_ ProfileRepositoryInterface  = (*ProfileRepository)(nil)
)

// Indexes lists the composite indexes the provider queries need: category
// browsing, city search by normalized key or raw city, and owner listings,
// all newest first.
func Indexes() []docstore.Index {
	desc := docstore.Order{Field: models.FieldCreatedAt, Direction: docstore.Desc}
	field := func(name string) docstore.Order { return docstore.Order{Field: name} }
	return []docstore.Index{
		{Collection: models.ProvidersCollection, Fields: []docstore.Order{field(models.FieldCategory), field(models.FieldCityLC), desc}},
		{Collection: models.ProvidersCollection, Fields: []docstore.Order{field(models.FieldCategory), field(models.FieldCity), desc}},
		{Collection: models.ProvidersCollection, Fields: []docstore.Order{field(models.FieldCategory), desc}},
		{Collection: models.ProvidersCollection, Fields: []docstore.Order{field(models.FieldCityLC), desc}},
		{Collection: models.ProvidersCollection, Fields: []docstore.Order{field(models.FieldCity), desc}},
		{Collection: models.ProvidersCollection, Fields: []docstore.Order{field(models.FieldUID), desc}},
		{Collection: models.AccountsCollection, Fields: []docstore.Order{field("email")}},
	}
}
