package localstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "storage.json")
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Set("user_location", `{"city":"Pune"}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	got, err := reopened.Get("user_location")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != `{"city":"Pune"}` {
		t.Errorf("Get() = %q", got)
	}

	if err := reopened.Remove("user_location"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := s.Get("user_location"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "storage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, err := s.Get("k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want decode error", err)
	}
	if err := s.Set("k", "v"); err != nil {
		t.Fatalf("Set() over corrupt file error = %v", err)
	}
	if got, _ := s.Get("k"); got != "v" {
		t.Errorf("Get() = %q, want v", got)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	m := NewMemoryStore()
	_ = m.Set("a", "1")
	if got, err := m.Get("a"); err != nil || got != "1" {
		t.Errorf("Get() = %q, %v", got, err)
	}
	_ = m.Remove("a")
	if _, err := m.Get("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
