package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"golang.org/x/crypto/bcrypt"
)

func newTestService() *Service {
	svc := NewService(docstore.NewMemoryStore(), NewTokenManager("test-secret", "quickfix-test", time.Hour), nil, nil)
	svc.cost = bcrypt.MinCost
	return svc
}

func TestService_SignUpAndSignIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()

	g, err := svc.SignUp(ctx, " Asha@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if g.Identity.UID == "" || g.Identity.Email != "asha@example.com" || g.Token == "" {
		t.Errorf("SignUp() grant = %+v", g)
	}

	in, err := svc.SignIn(ctx, "asha@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if in.Identity.UID != g.Identity.UID {
		t.Errorf("SignIn() uid = %q, want %q", in.Identity.UID, g.Identity.UID)
	}

	id, err := svc.Verify(ctx, in.Token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UID != g.Identity.UID || id.Email != "asha@example.com" {
		t.Errorf("Verify() = %+v", id)
	}
}

func TestService_SignUpFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	if _, err := svc.SignUp(ctx, "taken@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"invalid email", "not-an-email", "secret1", ErrInvalidEmail},
		{"empty email", "", "secret1", ErrInvalidEmail},
		{"short password", "new@example.com", "12345", ErrWeakPassword},
		{"duplicate", "TAKEN@example.com", "secret1", ErrEmailInUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("SignUp() error = %v, want %v", err, tt.want)
			}
			if !IsAuthFailure(err) {
				t.Errorf("IsAuthFailure(%v) = false", err)
			}
		})
	}
}

func TestService_SignInFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	_, _ = svc.SignUp(ctx, "a@example.com", "secret1")

	if _, err := svc.SignIn(ctx, "a@example.com", "wrong!"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v", err)
	}
}

func TestService_SignOutRevokes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService()
	g, _ := svc.SignUp(ctx, "a@example.com", "secret1")

	if err := svc.SignOut(ctx, g.Token); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if _, err := svc.Verify(ctx, g.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() after sign-out error = %v, want ErrInvalidToken", err)
	}
	if err := svc.SignOut(ctx, "garbage"); err != nil {
		t.Errorf("SignOut(garbage) error = %v, want nil", err)
	}
}

func TestTokenManager(t *testing.T) {
	t.Parallel()
	m := NewTokenManager("secret", "issuer", time.Hour)
	tok, claims, err := m.Issue("uid-1", "a@b.c")
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got.UID != "uid-1" || got.Email != "a@b.c" || got.TokenID != claims.TokenID {
		t.Errorf("Parse() = %+v", got)
	}

	if _, err := NewTokenManager("other", "issuer", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret error = %v", err)
	}
	if _, err := NewTokenManager("secret", "someone-else", time.Hour).Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong issuer error = %v", err)
	}

	expired := NewTokenManager("secret", "issuer", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, _ := expired.Issue("uid-1", "")
	if _, err := m.Parse(old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token error = %v", err)
	}
}

func TestMemoryRevocationList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewMemoryRevocationList()
	_ = r.Revoke(ctx, "a", time.Now().Add(time.Hour))
	_ = r.Revoke(ctx, "b", time.Now().Add(-time.Second))
	if ok, _ := r.IsRevoked(ctx, "a"); !ok {
		t.Error("a should be revoked")
	}
	if ok, _ := r.IsRevoked(ctx, "b"); ok {
		t.Error("b revocation already lapsed")
	}
	if ok, _ := r.IsRevoked(ctx, "c"); ok {
		t.Error("c was never revoked")
	}
}
