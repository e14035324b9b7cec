package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/quickfix/quickfix-api/internal/localstore"
	"go.uber.org/zap"
)

// SessionKey is the durable storage key of the signed-in grant.
const SessionKey = "auth_session"

// Observer is told about every change of the signed-in identity; nil means signed out.
type Observer func(*Identity)

// Session is the client-side view of who is signed in.
type Session struct {
	mu        sync.Mutex
	auth      Authenticator
	storage   localstore.Storage
	grant     *Grant
	observers map[int]Observer
	nextID    int
	logger    *zap.Logger
}

// NewSession restores a stored grant if its token still verifies.
func NewSession(ctx context.Context, auth Authenticator, storage localstore.Storage, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{auth: auth, storage: storage, observers: map[int]Observer{}, logger: log}

	raw, err := storage.Get(SessionKey)
	if err != nil {
		return s
	}
	var g Grant
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		_ = storage.Remove(SessionKey)
		return s
	}
	id, err := auth.Verify(ctx, g.Token)
	if err != nil {
		log.Debug("stored_session_discarded", zap.Error(err))
		_ = storage.Remove(SessionKey)
		return s
	}
	g.Identity = *id
	s.grant = &g
	return s
}

// Current returns the signed-in identity, or nil.
func (s *Session) Current() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grant == nil {
		return nil
	}
	id := s.grant.Identity
	return &id
}

// Token returns the access token of the signed-in identity, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grant == nil {
		return ""
	}
	return s.grant.Token
}

func (s *Session) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	g, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.adopt(g)
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	g, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.adopt(g)
}

// SignOut revokes the token and forgets the grant. The local grant is
// dropped even if revocation fails.
func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	g := s.grant
	s.grant = nil
	s.mu.Unlock()
	if g == nil {
		return ErrNotSignedIn
	}

	var errs []error
	if err := s.auth.SignOut(ctx, g.Token); err != nil {
		errs = append(errs, fmt.Errorf("failed to revoke token: %w", err))
	}
	if err := s.storage.Remove(SessionKey); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear stored session: %w", err))
	}
	s.notify(nil)
	return errors.Join(errs...)
}

func (s *Session) adopt(g *Grant) (*Identity, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.storage.Set(SessionKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	s.mu.Lock()
	s.grant = g
	s.mu.Unlock()

	id := g.Identity
	s.notify(&id)
	return &id, nil
}

// ObserveCurrentIdentity calls fn with the current identity immediately and
// after every change, until the returned func is called.
func (s *Session) ObserveCurrentIdentity(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	var current *Identity
	if s.grant != nil {
		c := s.grant.Identity
		current = &c
	}
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) notify(id *Identity) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()
	for _, fn := range observers {
		if id == nil {
			fn(nil)
			continue
		}
		c := *id
		fn(&c)
	}
}
