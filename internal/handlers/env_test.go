package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/matcher"
	"github.com/quickfix/quickfix-api/internal/request"
	"github.com/quickfix/quickfix-api/internal/services/geocode"
	"github.com/quickfix/quickfix-api/internal/services/identity"
	"github.com/quickfix/quickfix-api/internal/services/listings"
)

const testSecret = "handlers-test-secret-at-least-32-bytes!"

type stubGeocoder struct {
	point *geocode.Point
	place *geocode.Place
}

func (g *stubGeocoder) Forward(ctx context.Context, city string) *geocode.Point { return g.point }

func (g *stubGeocoder) Reverse(ctx context.Context, lat, lng float64) *geocode.Place { return g.place }

// testEnv wires the real services over an in-memory document store
type testEnv struct {
	feed      *docstore.Feed
	providers *database.ProviderRepository
	profiles  *database.ProfileRepository
	listings  *listings.Service
	matcher   *matcher.Matcher
	identity  *identity.Service
	geo       *stubGeocoder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	var tick int64
	mem := docstore.NewMemoryStore(docstore.WithClock(func() time.Time {
		// Distinct timestamps keep newest-first ordering deterministic
		return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	}))
	feed := docstore.NewFeed(mem, docstore.NewLocalNotifier(), nil)
	providers := database.NewProviderRepository(feed)
	geo := &stubGeocoder{}
	return &testEnv{
		feed:      feed,
		providers: providers,
		profiles:  database.NewProfileRepository(feed),
		listings:  listings.NewService(providers, feed, geo, nil, nil),
		matcher:   matcher.New(feed, nil),
		identity:  identity.NewService(feed, identity.NewTokenManager(testSecret, "quickfix-test", time.Hour), nil, nil),
		geo:       geo,
	}
}

func testForm(category, city string) listings.Form {
	return listings.Form{
		Name:            "Asha",
		FirmName:        "Asha Repairs",
		Category:        category,
		City:            city,
		Phone:           "+91 98000 00000",
		Description:     "Wiring and repairs",
		ExperienceYears: "5",
		Price:           "500",
	}
}

func (e *testEnv) addListing(t *testing.T, owner, category, city string) string {
	t.Helper()
	res, err := e.listings.Save(context.Background(), owner, "", testForm(category, city))
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return res.ID
}

func asUser(r *http.Request, uid string) *http.Request {
	return r.WithContext(request.WithIdentity(r.Context(), &identity.Identity{UID: uid, Email: uid + "@example.com"}, "token-"+uid))
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return strings.NewReader(string(b))
}

// envelope is the decoded response wrapper
type envelope struct {
	Success   bool              `json:"success"`
	Data      json.RawMessage   `json:"data"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields"`
	Timestamp string            `json:"timestamp"`
}

func decodeEnvelope(t *testing.T, body io.Reader, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}
