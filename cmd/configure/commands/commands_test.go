package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quickfix/quickfix-api/internal/database"
	"github.com/quickfix/quickfix-api/internal/docstore"
	"github.com/quickfix/quickfix-api/internal/models"
	"github.com/quickfix/quickfix-api/internal/queue"
	"github.com/spf13/cobra"
)

type fakeQueue struct {
	mu        sync.Mutex
	jobs      []*queue.Job
	retention time.Duration
}

func (q *fakeQueue) Enqueue(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) PurgeOlderThan(_ context.Context, retention time.Duration) (int, error) {
	q.retention = retention
	return 3, nil
}

// useFakes points the commands at an in-memory store and queue. Tests using it
// must not run in parallel.
func useFakes(t *testing.T) (*docstore.MemoryStore, *fakeQueue) {
	t.Helper()
	store := docstore.NewMemoryStore(docstore.WithIndexEnforcement())
	q := &fakeQueue{}
	prevStore, prevQueue := openStore, openQueue
	openStore = func(context.Context) (docstore.Store, func(), error) { return store, func() {}, nil }
	openQueue = func(context.Context) (brokerQueue, func(), error) { return q, func() {}, nil }
	t.Cleanup(func() { openStore, openQueue = prevStore, prevQueue })
	return store, q
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	cmd.SetContext(context.Background())
	err := cmd.Execute()
	return out.String(), err
}

func TestCorsCommands(t *testing.T) {
	useFakes(t)

	out, err := run(t, NewCorsCmd(), "list")
	if err != nil || !strings.Contains(out, "No CORS configuration") {
		t.Fatalf("empty list: %q, %v", out, err)
	}

	if _, err := run(t, NewCorsCmd(), "set"); err == nil {
		t.Error("set without --origins must fail")
	}

	if _, err := run(t, NewCorsCmd(), "set", "--origins", "https://a.example.com,https://b.example.com", "--max-age", "60"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err = run(t, NewCorsCmd(), "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "https://a.example.com,https://b.example.com") || !strings.Contains(out, "Max-Age: 60") {
		t.Errorf("list output = %q", out)
	}
}

func TestRatelimitCommands(t *testing.T) {
	useFakes(t)

	if _, err := run(t, NewRatelimitCmd(), "set", "--rate", "often"); err == nil {
		t.Error("unparseable rate must be rejected")
	}
	if _, err := run(t, NewRatelimitCmd(), "set", "--rate", "100-M"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := run(t, NewRatelimitCmd(), "list")
	if err != nil || !strings.Contains(out, "Rate: 100-M") {
		t.Errorf("list = %q, %v", out, err)
	}
}

func TestIndexesEnsure(t *testing.T) {
	store, _ := useFakes(t)
	search := docstore.Query{
		Collection: models.ProvidersCollection,
		Filters: []docstore.Filter{
			{Field: models.FieldCategory, Value: "Plumber"},
			{Field: models.FieldCityLC, Value: "pune"},
		},
		OrderBy: []docstore.Order{{Field: models.FieldCreatedAt, Direction: docstore.Desc}},
	}

	if _, err := store.Query(context.Background(), search); !docstore.IsIndexRequired(err) {
		t.Fatalf("expected index error before ensure, got %v", err)
	}
	out, err := run(t, NewIndexesCmd(), "ensure")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !strings.Contains(out, "indexes ensured") {
		t.Errorf("output = %q", out)
	}
	if _, err := store.Query(context.Background(), search); err != nil {
		t.Errorf("query after ensure: %v", err)
	}

	out, err = run(t, NewIndexesCmd(), "list")
	if err != nil || !strings.Contains(out, "created_at desc") {
		t.Errorf("list = %q, %v", out, err)
	}
}

func TestBackfillCommand(t *testing.T) {
	store, q := useFakes(t)
	repo := database.NewProviderRepository(store)
	if _, err := repo.Create(context.Background(), map[string]any{models.FieldUID: "u1", models.FieldCity: "Pune"}); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, NewBackfillCmd(), "--geocode=false")
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if !strings.Contains(out, "Checked 1 listings") || !strings.Contains(out, "City key repairs scheduled: 1") {
		t.Errorf("output = %q", out)
	}
	if len(q.jobs) != 1 || q.jobs[0].Type != queue.JobTypeRepairCityKey {
		t.Errorf("jobs = %+v", q.jobs)
	}
}

func TestBackfillCommand_QueueUnavailable(t *testing.T) {
	useFakes(t)
	openQueue = func(context.Context) (brokerQueue, func(), error) {
		return nil, nil, errors.New("connect to job queue: job queue not configured")
	}
	if _, err := run(t, NewBackfillCmd()); err == nil {
		t.Error("backfill without a queue must fail")
	}
}

func TestDLQPurge(t *testing.T) {
	_, q := useFakes(t)
	out, err := run(t, NewDLQCmd(), "purge", "--older-than", "2h")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if !strings.Contains(out, "Purged 3") || q.retention != 2*time.Hour {
		t.Errorf("output %q, retention %v", out, q.retention)
	}
}
