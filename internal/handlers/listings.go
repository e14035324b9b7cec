package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/listings"
	"go.uber.org/zap"
)

// ListingManager is the owner-side listing service
type ListingManager interface {
	Save(ctx context.Context, owner, editID string, form listings.Form) (*listings.Result, error)
	Get(ctx context.Context, id string) (*models.Provider, error)
	Delete(ctx context.Context, owner, id string, confirmed bool) error
	ListMine(ctx context.Context, owner string) ([]models.Provider, error)
	WatchMine(ctx context.Context, owner string, fn func([]models.Provider, error)) (docstore.Subscription, error)
}

// ListingsHandler serves the signed-in user's own listings
type ListingsHandler struct {
	listings ListingManager
	logger   *zap.Logger
}

// NewListingsHandler creates a listings handler
func NewListingsHandler(manager ListingManager, log *zap.Logger) *ListingsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ListingsHandler{listings: manager, logger: log}
}

// RegisterRoutes registers owner routes on a router with the /api/v1/me prefix.
// The stream route is registered separately so it can bypass request timeouts.
func (h *ListingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/providers", h.ListMine).Methods(http.MethodGet)
	r.HandleFunc("/providers", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/providers/{id}", h.GetMine).Methods(http.MethodGet)
	r.HandleFunc("/providers/{id}", h.Update).Methods(http.MethodPut)
	r.HandleFunc("/providers/{id}", h.Delete).Methods(http.MethodDelete)
}

// ListMine returns the caller's listings, newest first
func (h *ListingsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	providers, err := h.listings.ListMine(r.Context(), request.UID(r))
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ProviderList{Count: len(providers), Providers: providers})
}

// GetMine loads one of the caller's listings for editing
func (h *ListingsHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	p, err := h.listings.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	if p.UID != request.UID(r) {
		respondProblem(w, r, h.logger, listings.ErrForbidden)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Create registers a new listing owned by the caller
func (h *ListingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, "")
}

// Update edits one of the caller's listings
func (h *ListingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, mux.Vars(r)["id"])
}

func (h *ListingsHandler) save(w http.ResponseWriter, r *http.Request, editID string) {
	var form listings.Form
	if err := decodeJSON(r, &form); err != nil {
		respondBadRequest(w, err)
		return
	}
	res, err := h.listings.Save(r.Context(), request.UID(r), editID, form)
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		w.Header().Set("Location", MyProvidersPath+"/"+res.ID)
	}
	respondJSON(w, status, res)
}

// Delete removes one of the caller's listings; it requires confirm=true
func (h *ListingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	id := mux.Vars(r)["id"]
	if err := h.listings.Delete(r.Context(), request.UID(r), id, confirmed); err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
