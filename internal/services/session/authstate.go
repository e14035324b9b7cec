// Package session tracks the signed-in user together with whether they
// publish any provider listing.
package session

import (
	"context"
	"sync"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"go.uber.org/zap"
)

// IdentitySource reports identity changes; identity.Session implements it.
type IdentitySource interface {
	ObserveCurrentIdentity(fn identity.Observer) (unsubscribe func())
}

// Watcher opens realtime query subscriptions; docstore.Feed implements it.
type Watcher interface {
	Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error)
}

// State is a point-in-time view of the authentication state.
type State struct {
	User       *identity.Identity `json:"user"`
	IsProvider bool               `json:"is_provider"`
	Loading    bool               `json:"loading"`
}

// AuthState follows a session. For every signed-in identity it ensures the
// users/{uid} profile exists and keeps IsProvider current through a live
// query on the identity's listings.
type AuthState struct {
	ctx      context.Context
	profiles database.ProfileRepositoryInterface
	watcher  Watcher
	logger   *zap.Logger

	slot docstore.Slot

	mu        sync.Mutex
	state     State
	gen       uint64
	observers map[int]func(State)
	nextID    int
	changed   chan struct{}
	unobserve func()
	closed    bool
}

// New starts following source. ctx bounds the lifetime of the ownership
// subscriptions; Close stops everything earlier.
func New(ctx context.Context, source IdentitySource, profiles database.ProfileRepositoryInterface, watcher Watcher, log *zap.Logger) *AuthState {
	if log == nil {
		log = zap.NewNop()
	}
	a := &AuthState{
		ctx:       ctx,
		profiles:  profiles,
		watcher:   watcher,
		logger:    log,
		observers: map[int]func(State){},
		changed:   make(chan struct{}),
	}
	a.state.Loading = true
	unobserve := source.ObserveCurrentIdentity(a.onIdentity)

	a.mu.Lock()
	a.unobserve = unobserve
	a.mu.Unlock()
	return a
}

// ProviderQuery selects at most one listing owned by uid.
func ProviderQuery(uid string) docstore.Query {
	q := database.OwnerQuery(uid)
	q.Limit = 1
	return q
}

func (a *AuthState) onIdentity(id *identity.Identity) {
	// Tear down the previous identity's subscription before anything else
	a.slot.Close()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.gen++
	gen := a.gen
	a.mu.Unlock()

	if id == nil {
		a.set(gen, State{})
		return
	}

	user := *id
	a.set(gen, State{User: &user, Loading: true})

	if created, err := a.profiles.Ensure(a.ctx, user.UID, user.Email, ""); err != nil {
		a.logger.Warn("profile_ensure_failed", zap.String("uid", user.UID), zap.Error(err))
	} else if created {
		a.logger.Info("profile_created", zap.String("uid", user.UID))
	}

	err := a.slot.Replace(func() (docstore.Subscription, error) {
		return a.watcher.Subscribe(a.ctx, ProviderQuery(user.UID), func(docs []docstore.Document, err error) {
			if err != nil {
				a.logger.Warn("provider_status_subscription_failed", zap.String("uid", user.UID), zap.Error(err))
				a.set(gen, State{User: &user})
				return
			}
			a.set(gen, State{User: &user, IsProvider: len(docs) > 0})
		})
	})
	if err != nil {
		a.logger.Warn("provider_status_subscription_failed", zap.String("uid", user.UID), zap.Error(err))
		a.set(gen, State{User: &user})
	}
}

// set publishes s unless a newer identity change has superseded gen.
func (a *AuthState) set(gen uint64, s State) {
	a.mu.Lock()
	if a.closed || gen != a.gen {
		a.mu.Unlock()
		return
	}
	a.state = s
	close(a.changed)
	a.changed = make(chan struct{})
	observers := make([]func(State), 0, len(a.observers))
	for _, fn := range a.observers {
		observers = append(observers, fn)
	}
	a.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// Current returns the latest state.
func (a *AuthState) Current() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Observe calls fn with the current state and after every change until the
// returned func is called. fn runs on the delivering goroutine and must not
// sign in or out synchronously.
func (a *AuthState) Observe(fn func(State)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.observers[id] = fn
	current := a.state
	a.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.observers, id)
			a.mu.Unlock()
		})
	}
}

// Ready blocks until the state is no longer loading.
func (a *AuthState) Ready(ctx context.Context) (State, error) {
	for {
		a.mu.Lock()
		s, changed := a.state, a.changed
		a.mu.Unlock()
		if !s.Loading {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-changed:
		}
	}
}

// Close stops following the session and releases the ownership subscription.
func (a *AuthState) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	unobserve := a.unobserve
	a.mu.Unlock()

	if unobserve != nil {
		unobserve()
	}
	a.slot.Close()
}
