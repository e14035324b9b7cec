// Package matcher finds provider listings for a category and city using a
// normalized-key query with a raw-city fallback for legacy documents.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Mode distinguishes category browsing from global city search.
type Mode int

const (
	// ModeCategory browses a category; an empty city lists every city.
	ModeCategory Mode = iota
	// ModeSearch searches a city; without a city nothing is queried.
	ModeSearch
)

// Kind classifies a failed lookup.
type Kind string

const (
	KindIndexRequired Kind = "INDEX_REQUIRED"
	KindQueryFailed   Kind = "QUERY_FAILED"
)

// QueryError reports a failed lookup. The caller decides whether to offer a retry.
type QueryError struct {
	Kind  Kind
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Request describes one lookup. City is the effective city (explicit
// parameter or stored preference), untrimmed.
type Request struct {
	Mode       Mode
	Category   string
	City       string
	ExcludeUID string
}

// Querier runs document queries.
type Querier interface {
	Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error)
}

// Matcher runs provider lookups.
type Matcher struct {
	store  Querier
	logger *zap.Logger
}

// New creates a Matcher over store.
func New(store Querier, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{store: store, logger: log}
}

// FindProviders returns matching listings newest first, never including
// listings owned by req.ExcludeUID.
func (m *Matcher) FindProviders(ctx context.Context, req Request) (result []models.Provider, err error) {
	ctx, span := telemetry.StartSpan(ctx, "matcher.find_providers",
		attribute.String("category", req.Category),
		attribute.Bool("search", req.Mode == ModeSearch),
	)
	defer func() {
		span.SetAttributes(attribute.Int("results", len(result)))
		telemetry.EndSpan(span, err)
	}()

	city := strings.TrimSpace(req.City)
	if req.Mode == ModeSearch && city == "" {
		return []models.Provider{}, nil
	}
	key := location.Normalize(city)

	primary := baseQuery(req.Category)
	if key != "" && key != location.AllCities {
		primary = primary.Where(models.FieldCityLC, key)
	}
	docs, err := m.run(ctx, primary)
	if err != nil {
		return nil, err
	}

	if city != "" && !usable(docs) {
		fallback := baseQuery(req.Category).Where(models.FieldCity, city)
		m.logger.Debug("matcher_fallback_query",
			zap.String("city", logger.SanitizeCity(city)),
			zap.Int("primary_results", len(docs)),
		)
		docs, err = m.run(ctx, fallback)
		if err != nil {
			return nil, err
		}
	}

	return ExcludeOwner(models.ProvidersFromDocuments(docs), req.ExcludeUID), nil
}

func baseQuery(category string) docstore.Query {
	q := docstore.Query{
		Collection: models.ProvidersCollection,
		OrderBy:    []docstore.Order{{Field: models.FieldCreatedAt, Direction: docstore.Desc}},
	}
	if category != "" {
		q = q.Where(models.FieldCategory, category)
	}
	return q
}

// usable reports whether a primary result can stand: it is non-empty and at
// least one document carries a city key.
func usable(docs []docstore.Document) bool {
	for _, d := range docs {
		if d.String(models.FieldCityLC) != "" {
			return true
		}
	}
	return false
}

func (m *Matcher) run(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	docs, err := m.store.Query(ctx, q)
	if err == nil {
		return docs, nil
	}
	kind := KindQueryFailed
	if docstore.IsIndexRequired(err) {
		kind = KindIndexRequired
	}
	m.logger.Error("provider_query_failed",
		zap.String("kind", string(kind)),
		zap.String("query", q.String()),
		zap.String("error", logger.SanitizeError(err)),
	)
	return nil, &QueryError{Kind: kind, Query: q.String(), Err: err}
}

// ExcludeOwner drops listings owned by uid, keeping order. An empty uid
// excludes nothing.
func ExcludeOwner(providers []models.Provider, uid string) []models.Provider {
	out := make([]models.Provider, 0, len(providers))
	for _, p := range providers {
		if uid != "" && p.UID == uid {
			continue
		}
		out = append(out, p)
	}
	return out
}
