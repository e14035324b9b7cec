package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/identity"
)

func newAuthRouter(env *testEnv) *mux.Router {
	h := NewAuthHandler(env.identity, env.profiles, env.providers, nil)
	r := mux.NewRouter()
	auth := r.PathPrefix("/api/v1/auth").Subrouter()
	h.RegisterPublicRoutes(auth)
	h.RegisterProtectedRoutes(auth)
	return r
}

func TestAuthHandler_SignUpCreatesProfile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	router := newAuthRouter(env)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", jsonBody(map[string]string{
		"email": "New@Example.com", "password": "secret1", "phone": "555-0100",
	})))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	decodeEnvelope(t, w.Body, &resp)
	if resp.Grant == nil || resp.Token == "" || resp.Identity.Email != "new@example.com" {
		t.Fatalf("grant = %+v", resp.Grant)
	}
	if resp.Profile == nil || resp.Profile.Phone != "555-0100" {
		t.Errorf("profile = %+v", resp.Profile)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signup", jsonBody(map[string]string{
		"email": "new@example.com", "password": "another1",
	})))
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate sign-up status = %d, want 409", w.Code)
	}
}

func TestAuthHandler_SignInFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	if _, err := env.identity.SignUp(context.Background(), "a@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	router := newAuthRouter(env)

	tests := []struct {
		name       string
		email      string
		password   string
		wantStatus int
		wantMsg    string
	}{
		{name: "success", email: "a@example.com", password: "secret1", wantStatus: http.StatusOK},
		{name: "wrong password", email: "a@example.com", password: "nope12", wantStatus: http.StatusUnauthorized, wantMsg: identity.ErrInvalidCredentials.Error()},
		{name: "unknown email", email: "b@example.com", password: "secret1", wantStatus: http.StatusUnauthorized, wantMsg: identity.ErrInvalidCredentials.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/signin", jsonBody(map[string]string{
				"email": tt.email, "password": tt.password,
			})))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			e := decodeEnvelope(t, w.Body, nil)
			if tt.wantMsg != "" && (e.Error != "AUTH_FAILURE" || e.Message != tt.wantMsg) {
				t.Errorf("envelope = %+v", e)
			}
		})
	}
}

func TestAuthHandler_MeAndSignOut(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	grant, err := env.identity.SignUp(ctx, "p@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	uid := grant.Identity.UID
	router := newAuthRouter(env)

	me := func() MeResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req = req.WithContext(request.WithIdentity(req.Context(), &grant.Identity, grant.Token))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("me status = %d", w.Code)
		}
		var resp MeResponse
		decodeEnvelope(t, w.Body, &resp)
		return resp
	}

	if resp := me(); resp.User == nil || resp.User.UID != uid || resp.IsProvider {
		t.Errorf("before listing: %+v", resp)
	}
	env.addListing(t, uid, "Mechanical", "Kochi")
	if resp := me(); !resp.IsProvider {
		t.Error("is_provider should be true once a listing exists")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/signout", nil)
	req = req.WithContext(request.WithIdentity(req.Context(), &grant.Identity, grant.Token))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("signout status = %d", w.Code)
	}
	if _, err := env.identity.Verify(ctx, grant.Token); err == nil {
		t.Error("token should be revoked after sign-out")
	}
}

func TestAuthHandler_MeWithoutIdentity(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newAuthRouter(newTestEnv(t)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
