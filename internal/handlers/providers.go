package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/apperr"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/matcher"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"go.uber.org/zap"
)

// MyProvidersPath is where owners manage their listings
const MyProvidersPath = "/api/v1/me/providers"

// ProviderFinder looks up listings by category and city
type ProviderFinder interface {
	FindProviders(ctx context.Context, req matcher.Request) ([]models.Provider, error)
}

// ListingViewer loads a listing for its public detail page
type ListingViewer interface {
	View(ctx context.Context, viewer, id string) (*models.Provider, error)
}

// ProvidersHandler serves the public browse, search and detail routes
type ProvidersHandler struct {
	finder   ProviderFinder
	viewer   ListingViewer
	geocoder geocode.Geocoder
	logger   *zap.Logger
}

// NewProvidersHandler creates a providers handler. geocoder may be nil.
func NewProvidersHandler(finder ProviderFinder, viewer ListingViewer, geocoder geocode.Geocoder, log *zap.Logger) *ProvidersHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProvidersHandler{finder: finder, viewer: viewer, geocoder: geocoder, logger: log}
}

// RegisterRoutes registers the public listing routes on a router with the /api/v1 prefix
func (h *ProvidersHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories/{category}/providers", h.CategoryProviders).Methods(http.MethodGet)
	r.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	r.HandleFunc("/providers/{id}", h.GetProvider).Methods(http.MethodGet)
}

// ProviderList is the response of browse and search
type ProviderList struct {
	Category  string            `json:"category,omitempty"`
	City      string            `json:"city"`
	Count     int               `json:"count"`
	Providers []models.Provider `json:"providers"`
}

// ListCategories returns the fixed category list
func (h *ProvidersHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.Categories)
}

// CategoryProviders lists a category's providers in a city; city defaults to all cities
func (h *ProvidersHandler) CategoryProviders(w http.ResponseWriter, r *http.Request) {
	category, ok := models.CanonicalCategory(mux.Vars(r)["category"])
	if !ok {
		respondJSONError(w, http.StatusNotFound, string(apperr.NotFound), "unknown category")
		return
	}
	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		city = location.AllCities
	}

	providers, err := h.finder.FindProviders(r.Context(), matcher.Request{
		Mode:       matcher.ModeCategory,
		Category:   category,
		City:       city,
		ExcludeUID: request.UID(r),
	})
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ProviderList{Category: category, City: city, Count: len(providers), Providers: providers})
}

// Search finds providers of every category in a city. Without a city the
// coordinates, when given, are reverse geocoded to one; otherwise the result is empty.
func (h *ProvidersHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	city := strings.TrimSpace(q.Get("city"))
	if city == "" {
		if pos, ok := parsePosition(q.Get("lat"), q.Get("lng")); ok {
			city = location.ResolvePosition(r.Context(), h.geocoder, pos).City
		}
	}

	providers, err := h.finder.FindProviders(r.Context(), matcher.Request{
		Mode:       matcher.ModeSearch,
		City:       city,
		ExcludeUID: request.UID(r),
	})
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ProviderList{City: city, Count: len(providers), Providers: providers})
}

// GetProvider returns a listing's detail. Owners are redirected to their own listings.
func (h *ProvidersHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.viewer.View(r.Context(), request.UID(r), mux.Vars(r)["id"])
	if err != nil {
		if apperr.Classify(err).Kind == apperr.OwnershipRedirect {
			w.Header().Set("Location", MyProvidersPath)
		}
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// parsePosition parses a lat/lng pair within coordinate bounds
func parsePosition(latRaw, lngRaw string) (location.Position, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	if err != nil {
		return location.Position{}, false
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if err != nil {
		return location.Position{}, false
	}
	pos := location.Position{Lat: lat, Lng: lng}
	return pos, validPosition(pos)
}

func validPosition(p location.Position) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
