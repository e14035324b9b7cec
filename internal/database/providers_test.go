package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickfix/quickfix-api/internal/docstore"
)

func TestProviderRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewProviderRepository(docstore.NewMemoryStore())

	id, err := repo.Create(ctx, map[string]any{"uid": "owner", "firm_name": "Fixit", "experience_years": 4, "created_at": docstore.ServerTimestamp})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = repo.Create(ctx, map[string]any{"uid": "other", "firm_name": "Other"})

	p, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != id || p.UID != "owner" || p.ExperienceYears != 4 || p.CreatedAt == nil {
		t.Errorf("GetByID() = %+v", p)
	}

	if err := repo.Update(ctx, id, map[string]any{"price": "500"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Update(ctx, "missing", map[string]any{"price": "1"}); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("Update(missing) error = %v", err)
	}

	mine, err := repo.ListByOwner(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Price != "500" {
		t.Errorf("ListByOwner() = %+v", mine)
	}

	all, _ := repo.ListAll(ctx)
	if len(all) != 2 {
		t.Errorf("ListAll() = %d, want 2", len(all))
	}

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByID(ctx, id); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("GetByID() after delete error = %v", err)
	}
}

func TestProviderRepository_ListByOwnerNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tick := 0
	store := docstore.NewMemoryStore(docstore.WithIndexEnforcement(), docstore.WithClock(func() time.Time {
		tick++
		return time.Date(2024, 1, 1, 0, 0, tick, 0, time.UTC)
	}))
	if err := store.EnsureIndexes(ctx, Indexes()); err != nil {
		t.Fatal(err)
	}
	repo := NewProviderRepository(store)

	var ids []string
	for _, firm := range []string{"first", "second", "third"} {
		id, err := repo.Create(ctx, map[string]any{"uid": "owner", "firm_name": firm, "created_at": docstore.ServerTimestamp})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	mine, err := repo.ListByOwner(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 3 || mine[0].ID != ids[2] || mine[2].ID != ids[0] {
		t.Errorf("ListByOwner() order = %v, want newest first", mine)
	}
}

func TestProfileRepository_Ensure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewProfileRepository(docstore.NewMemoryStore())

	created, err := repo.Ensure(ctx, "u1", "a@b.c", "98765")
	if err != nil || !created {
		t.Fatalf("Ensure() = %v, %v", created, err)
	}
	created, err = repo.Ensure(ctx, "u1", "changed@b.c", "")
	if err != nil || created {
		t.Fatalf("second Ensure() = %v, %v", created, err)
	}
	p, err := repo.GetByUID(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Email != "a@b.c" || p.Phone != "98765" || p.CreatedAt == nil {
		t.Errorf("profile = %+v, existing profile must not change", p)
	}
	if missing, err := repo.GetByUID(ctx, "nobody"); err != nil || missing != nil {
		t.Errorf("GetByUID(nobody) = %v, %v", missing, err)
	}
}

func TestIndexesCoverProviderQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := docstore.NewMemoryStore(docstore.WithIndexEnforcement())
	if err := store.EnsureIndexes(ctx, Indexes()); err != nil {
		t.Fatal(err)
	}
	desc := []docstore.Order{{Field: "created_at", Direction: docstore.Desc}}
	queries := []docstore.Query{
		{Collection: "providers", Filters: []docstore.Filter{{Field: "category", Value: "x"}, {Field: "city_lc", Value: "y"}}, OrderBy: desc},
		{Collection: "providers", Filters: []docstore.Filter{{Field: "category", Value: "x"}, {Field: "city", Value: "y"}}, OrderBy: desc},
		{Collection: "providers", Filters: []docstore.Filter{{Field: "category", Value: "x"}}, OrderBy: desc},
		{Collection: "providers", Filters: []docstore.Filter{{Field: "city_lc", Value: "y"}}, OrderBy: desc},
		{Collection: "providers", Filters: []docstore.Filter{{Field: "city", Value: "y"}}, OrderBy: desc},
		{Collection: "providers", OrderBy: desc},
		OwnerQuery("u"),
	}
	for _, q := range queries {
		if _, err := store.Query(ctx, q); err != nil {
			t.Errorf("Query(%s) error = %v", q, err)
		}
	}
}
