package identity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims are the verified contents of an access token.
type Claims struct {
	UID       string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

// TokenManager issues and verifies HS256 access tokens.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a manager with the provided secret, issuer, and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for uid. Each token carries a unique id so it can be revoked.
func (m *TokenManager) Issue(uid, email string) (string, Claims, error) {
	now := m.now()
	claims := Claims{
		UID:       uid,
		Email:     email,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}
	tok, err := jwt.NewBuilder().
		Issuer(m.issuer).
		Subject(uid).
		JwtID(claims.TokenID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(claims.ExpiresAt).
		Claim("email", email).
		Build()
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.secret))
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), claims, nil
}

// Parse verifies signature, issuer and lifetime.
func (m *TokenManager) Parse(token string) (Claims, error) {
	tok, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, m.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.issuer),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok.Subject() == "" || tok.JwtID() == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or id", ErrInvalidToken)
	}
	c := Claims{UID: tok.Subject(), TokenID: tok.JwtID(), ExpiresAt: tok.Expiration()}
	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			c.Email = s
		}
	}
	return c, nil
}
