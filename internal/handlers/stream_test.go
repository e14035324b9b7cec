package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialStream(t *testing.T, env *testEnv, uid string) *websocket.Conn {
	t.Helper()
	h := NewStreamHandler(env.listings, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Stream(w, asUser(r, uid))
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil reads frames until one satisfies cond
func readUntil(t *testing.T, conn *websocket.Conn, cond func(StreamMessage) bool) StreamMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if cond(msg) {
			return msg
		}
	}
}

func TestStreamHandler_PushesSnapshots(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.addListing(t, "u1", "Food", "Goa")
	env.addListing(t, "u2", "Food", "Goa")

	conn := dialStream(t, env, "u1")

	first := readUntil(t, conn, func(m StreamMessage) bool { return m.Type == StreamSnapshot })
	if first.Count != 1 || first.Providers[0].UID != "u1" {
		t.Fatalf("initial snapshot = %+v", first)
	}

	id := env.addListing(t, "u1", "Loans", "Goa")
	second := readUntil(t, conn, func(m StreamMessage) bool { return m.Count == 2 })
	if second.Providers[0].ID != id {
		t.Errorf("newest listing should come first, got %s", second.Providers[0].ID)
	}

	if err := env.listings.Delete(context.Background(), "u1", id, true); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(m StreamMessage) bool { return m.Count == 1 })
}

func TestStreamHandler_RejectsAnonymous(t *testing.T) {
	t.Parallel()

	h := NewStreamHandler(newTestEnv(t).listings, nil, nil)
	w := httptest.NewRecorder()
	h.Stream(w, httptest.NewRequest(http.MethodGet, "/api/v1/me/providers/stream", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSnapshotMessage(t *testing.T) {
	t.Parallel()

	if m := snapshotMessage(nil, nil); m.Type != StreamSnapshot || m.Providers == nil || m.Count != 0 {
		t.Errorf("empty snapshot = %+v", m)
	}
	m := snapshotMessage(nil, context.DeadlineExceeded)
	if m.Type != StreamError || m.Error != "INTERNAL" {
		t.Errorf("error frame = %+v", m)
	}
}
