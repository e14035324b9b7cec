// Package identity implements email/password accounts, signed access tokens
// and the client-side signed-in session.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/logger"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Identity is an authenticated user.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// Grant is the result of a successful sign-up or sign-in.
type Grant struct {
	Identity  Identity  `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticator is the identity provider contract.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (*Grant, error)
	SignIn(ctx context.Context, email, password string) (*Grant, error)
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Service stores accounts in the document store and issues tokens for them.
type Service struct {
	store   docstore.Store
	tokens  *TokenManager
	revoked RevocationList
	cost    int
	logger  *zap.Logger
}

var _ Authenticator = (*Service)(nil)

// NewService creates the identity service.
func NewService(store docstore.Store, tokens *TokenManager, revoked RevocationList, log *zap.Logger) *Service {
	if revoked == nil {
		revoked = NewMemoryRevocationList()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, revoked: revoked, cost: bcrypt.DefaultCost, logger: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) findAccount(ctx context.Context, email string) (*docstore.Document, error) {
	docs, err := s.store.Query(ctx, docstore.Query{
		Collection: models.AccountsCollection,
		Filters:    []docstore.Filter{{Field: "email", Value: email}},
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Grant, error) {
	email = normalizeEmail(email)
	if err := validation.Validate.Var(email, "required,email"); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	existing, err := s.findAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	uid, err := s.store.Create(ctx, models.AccountsCollection, map[string]any{
		"email":         email,
		"password_hash": string(hash),
		"created_at":    docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	s.logger.Info("account_created", zap.String("uid", logger.SanitizeUID(uid)))
	return s.grant(uid, email)
}

// SignIn verifies credentials. Unknown emails and wrong passwords fail alike.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	email = normalizeEmail(email)
	account, err := s.findAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil {
		s.logger.Info("sign_in_rejected", zap.String("email", logger.MaskEmail(email)), zap.String("reason", "unknown_email"))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.String("password_hash")), []byte(password)); err != nil {
		s.logger.Info("sign_in_rejected", zap.String("email", logger.MaskEmail(email)), zap.String("reason", "bad_password"))
		return nil, ErrInvalidCredentials
	}
	return s.grant(account.ID, email)
}

func (s *Service) grant(uid, email string) (*Grant, error) {
	token, claims, err := s.tokens.Issue(uid, email)
	if err != nil {
		return nil, err
	}
	return &Grant{Identity: Identity{UID: uid, Email: email}, Token: token, ExpiresAt: claims.ExpiresAt}, nil
}

// SignOut revokes token. Signing out an invalid token is a no-op.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return err
	}
	s.logger.Info("signed_out", zap.String("uid", logger.SanitizeUID(claims.UID)))
	return nil
}

// Verify resolves a token to its identity.
func (s *Service) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}
	return &Identity{UID: claims.UID, Email: claims.Email}, nil
}
