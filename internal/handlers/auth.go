package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"go.uber.org/zap"
)

// Accounts is the identity provider used by the auth routes
type Accounts interface {
	SignUp(ctx context.Context, email, password string) (*identity.Grant, error)
	SignIn(ctx context.Context, email, password string) (*identity.Grant, error)
	SignOut(ctx context.Context, token string) error
}

// AuthHandler handles sign-up, sign-in, sign-out and the current user
type AuthHandler struct {
	accounts  Accounts
	profiles  database.ProfileRepositoryInterface
	providers database.ProviderRepositoryInterface
	logger    *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts Accounts, profiles database.ProfileRepositoryInterface, providers database.ProviderRepositoryInterface, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{accounts: accounts, profiles: profiles, providers: providers, logger: log}
}

// RegisterPublicRoutes registers the credential routes on a router with the /api/v1/auth prefix
func (h *AuthHandler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/signup", h.SignUp).Methods(http.MethodPost)
	r.HandleFunc("/signin", h.SignIn).Methods(http.MethodPost)
}

// RegisterProtectedRoutes registers routes that need a verified identity
func (h *AuthHandler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/signout", h.SignOut).Methods(http.MethodPost)
	r.HandleFunc("/me", h.Me).Methods(http.MethodGet)
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// SessionResponse is returned by sign-up and sign-in
type SessionResponse struct {
	*identity.Grant
	Profile *models.Profile `json:"profile,omitempty"`
}

// SignUp creates an account and its profile
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(r, &body); err != nil {
		respondBadRequest(w, err)
		return
	}
	grant, err := h.accounts.SignUp(r.Context(), body.Email, body.Password)
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.session(r.Context(), grant, body.Phone))
}

// SignIn exchanges credentials for an access token
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(r, &body); err != nil {
		respondBadRequest(w, err)
		return
	}
	grant, err := h.accounts.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, h.session(r.Context(), grant, ""))
}

// session ensures the profile document exists. Profile failures do not fail
// authentication; the profile is retried on the next sign-in.
func (h *AuthHandler) session(ctx context.Context, grant *identity.Grant, phone string) SessionResponse {
	resp := SessionResponse{Grant: grant}
	uid := grant.Identity.UID
	if _, err := h.profiles.Ensure(ctx, uid, grant.Identity.Email, phone); err != nil {
		h.logger.Warn("profile_ensure_failed", zap.String("uid", uid), zap.Error(err))
		return resp
	}
	profile, err := h.profiles.GetByUID(ctx, uid)
	if err != nil {
		h.logger.Warn("profile_load_failed", zap.String("uid", uid), zap.Error(err))
		return resp
	}
	resp.Profile = profile
	return resp
}

// SignOut revokes the presented token
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.SignOut(r.Context(), request.TokenFromContext(r)); err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"signed_out": true})
}

// MeResponse describes the signed-in user
type MeResponse struct {
	User       *identity.Identity `json:"user"`
	Profile    *models.Profile    `json:"profile,omitempty"`
	IsProvider bool               `json:"is_provider"`
}

// Me returns the identity, profile and whether the user publishes any listing
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := request.IdentityFromContext(r)
	if id == nil {
		respondProblem(w, r, h.logger, identity.ErrNotSignedIn)
		return
	}
	resp := MeResponse{User: id}

	if profile, err := h.profiles.GetByUID(r.Context(), id.UID); err == nil {
		resp.Profile = profile
	} else {
		h.logger.Warn("profile_load_failed", zap.String("uid", id.UID), zap.Error(err))
	}

	listings, err := h.providers.ListByOwner(r.Context(), id.UID)
	if err != nil {
		respondProblem(w, r, h.logger, err)
		return
	}
	resp.IsProvider = len(listings) > 0

	respondJSON(w, http.StatusOK, resp)
}
