package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/services/identity"
)

// fakeSource is a hand-driven IdentitySource.
type fakeSource struct {
	mu       sync.Mutex
	current  *identity.Identity
	observer identity.Observer
	stopped  bool
}

func (f *fakeSource) ObserveCurrentIdentity(fn identity.Observer) func() {
	f.mu.Lock()
	f.observer = fn
	current := f.current
	f.mu.Unlock()
	fn(current)
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}
}

func (f *fakeSource) emit(id *identity.Identity) {
	f.mu.Lock()
	f.current = id
	fn := f.observer
	f.mu.Unlock()
	fn(id)
}

// countingWatcher wraps a Feed and tracks open subscriptions.
type countingWatcher struct {
	feed *docstore.Feed
	mu   sync.Mutex
	open int
	err  error
}

type countedSub struct {
	docstore.Subscription
	w    *countingWatcher
	once sync.Once
}

func (s *countedSub) Unsubscribe() {
	s.once.Do(func() {
		s.w.mu.Lock()
		s.w.open--
		s.w.mu.Unlock()
	})
	s.Subscription.Unsubscribe()
}

func (w *countingWatcher) Subscribe(ctx context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Subscription, error) {
	if w.err != nil {
		return nil, w.err
	}
	sub, err := w.feed.Subscribe(ctx, q, fn)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.open++
	w.mu.Unlock()
	return &countedSub{Subscription: sub, w: w}, nil
}

func (w *countingWatcher) openCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

type fixture struct {
	feed     *docstore.Feed
	profiles *database.ProfileRepository
	watcher  *countingWatcher
	source   *fakeSource
}

func newFixture() *fixture {
	feed := docstore.NewFeed(docstore.NewMemoryStore(), docstore.NewLocalNotifier(), nil)
	return &fixture{
		feed:     feed,
		profiles: database.NewProfileRepository(feed),
		watcher:  &countingWatcher{feed: feed},
		source:   &fakeSource{},
	}
}

func waitState(t *testing.T, a *AuthState, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := a.Current(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never satisfied condition; last state %+v", a.Current())
	return State{}
}

func TestAuthState_SignedOut(t *testing.T) {
	t.Parallel()
	f := newFixture()

	a := New(context.Background(), f.source, f.profiles, f.watcher, nil)
	defer a.Close()

	s, err := a.Ready(context.Background())
	if err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.User != nil || s.IsProvider {
		t.Errorf("unexpected signed-out state %+v", s)
	}
	if f.watcher.openCount() != 0 {
		t.Error("signed-out state must not subscribe")
	}
}

func TestAuthState_EnsuresProfileAndTracksProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	f.source.current = &identity.Identity{UID: "u1", Email: "a@example.com"}

	a := New(ctx, f.source, f.profiles, f.watcher, nil)
	defer a.Close()

	s, err := a.Ready(ctx)
	if err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.User == nil || s.User.UID != "u1" || s.IsProvider {
		t.Fatalf("unexpected state %+v", s)
	}

	profile, err := f.profiles.GetByUID(ctx, "u1")
	if err != nil || profile == nil {
		t.Fatalf("profile not created: %v", err)
	}
	if profile.Email != "a@example.com" {
		t.Errorf("profile email = %q", profile.Email)
	}

	if _, err := f.feed.Create(ctx, models.ProvidersCollection, map[string]any{models.FieldUID: "u1"}); err != nil {
		t.Fatal(err)
	}
	waitState(t, a, func(s State) bool { return s.IsProvider })
}

func TestAuthState_IdentityChangeReplacesSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture()
	if _, err := f.feed.Create(ctx, models.ProvidersCollection, map[string]any{models.FieldUID: "u1"}); err != nil {
		t.Fatal(err)
	}
	f.source.current = &identity.Identity{UID: "u1", Email: "a@example.com"}

	a := New(ctx, f.source, f.profiles, f.watcher, nil)
	defer a.Close()
	waitState(t, a, func(s State) bool { return s.IsProvider })

	f.source.emit(&identity.Identity{UID: "u2", Email: "b@example.com"})
	s := waitState(t, a, func(s State) bool { return !s.Loading && s.User != nil && s.User.UID == "u2" })
	if s.IsProvider {
		t.Error("u2 owns no listing")
	}
	if n := f.watcher.openCount(); n != 1 {
		t.Errorf("open subscriptions = %d, want 1", n)
	}

	f.source.emit(nil)
	waitState(t, a, func(s State) bool { return s.User == nil })
	if n := f.watcher.openCount(); n != 0 {
		t.Errorf("open subscriptions after sign-out = %d, want 0", n)
	}
}

func TestAuthState_SubscriptionFailureClearsProvider(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.watcher.err = errors.New("permission denied")
	f.source.current = &identity.Identity{UID: "u1"}

	a := New(context.Background(), f.source, f.profiles, f.watcher, nil)
	defer a.Close()

	s, err := a.Ready(context.Background())
	if err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.User == nil || s.IsProvider {
		t.Errorf("unexpected state %+v", s)
	}
}

func TestAuthState_Close(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.source.current = &identity.Identity{UID: "u1"}

	a := New(context.Background(), f.source, f.profiles, f.watcher, nil)
	if _, err := a.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	a.Close()
	a.Close()

	if n := f.watcher.openCount(); n != 0 {
		t.Errorf("open subscriptions after Close = %d, want 0", n)
	}
	f.source.mu.Lock()
	stopped := f.source.stopped
	f.source.mu.Unlock()
	if !stopped {
		t.Error("Close must stop observing the session")
	}
}

func TestAuthState_Observe(t *testing.T) {
	t.Parallel()
	f := newFixture()
	a := New(context.Background(), f.source, f.profiles, f.watcher, nil)
	defer a.Close()

	var mu sync.Mutex
	var seen []State
	stop := a.Observe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	f.source.emit(&identity.Identity{UID: "u9"})
	waitState(t, a, func(s State) bool { return !s.Loading && s.User != nil })
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 2 {
		t.Fatalf("expected initial and change notifications, got %d", len(seen))
	}
	if seen[0].User != nil {
		t.Error("first notification must carry the signed-out state")
	}
}
