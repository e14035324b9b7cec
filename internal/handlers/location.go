package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/apperr"
	"github.com/quickfix/quickfix-api/internal/location"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"go.uber.org/zap"
)

// LocationHandler turns a typed city or a detected position into a
// location preference record. It is stateless; clients keep the record.
type LocationHandler struct {
	geocoder geocode.Geocoder
	logger   *zap.Logger
}

// NewLocationHandler creates a location handler. geocoder may be nil.
func NewLocationHandler(geocoder geocode.Geocoder, log *zap.Logger) *LocationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocationHandler{geocoder: geocoder, logger: log}
}

// RegisterRoutes registers location routes on a router with the /api/v1 prefix
func (h *LocationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/location/resolve", h.Resolve).Methods(http.MethodPost)
}

type resolveRequest struct {
	City string   `json:"city"`
	Lat  *float64 `json:"lat"`
	Lng  *float64 `json:"lng"`
}

// ResolveResponse carries the preference and any geocoding warning
type ResolveResponse struct {
	Preference location.Preference `json:"preference"`
	Warning    string              `json:"warning,omitempty"`
}

// Resolve builds a preference from {city} or {lat,lng}. A city the geocoder
// cannot place is still accepted, without coordinates.
func (h *LocationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := decodeJSON(r, &body); err != nil {
		respondBadRequest(w, err)
		return
	}

	var resp ResolveResponse
	switch city := strings.TrimSpace(body.City); {
	case city != "":
		resp.Preference = location.Resolve(r.Context(), h.geocoder, city)
		if resp.Preference.Lat == nil {
			resp.Warning = string(apperr.GeocodeUnavailable)
		}
	case body.Lat != nil && body.Lng != nil:
		pos := location.Position{Lat: *body.Lat, Lng: *body.Lng}
		if !validPosition(pos) {
			respondJSONError(w, http.StatusBadRequest, string(apperr.ValidationFailed), "lat/lng out of range")
			return
		}
		resp.Preference = location.ResolvePosition(r.Context(), h.geocoder, pos)
		if resp.Preference.City == "" {
			resp.Warning = string(apperr.GeocodeUnavailable)
		}
	default:
		respondJSONError(w, http.StatusBadRequest, string(apperr.ValidationFailed), "provide a city or lat/lng")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
