package location

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/quickfix/quickfix-api/internal/localstore"
	"go.uber.org/zap"
)

// StorageKey is the durable storage key of the preference record.
const StorageKey = "user_location"

// Preference is the user's chosen or detected location. The zero value is
// the empty default.
type Preference struct {
	City   string   `json:"city"`
	CityLC string   `json:"city_lc"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

// IsZero reports whether p is the empty default.
func (p Preference) IsZero() bool {
	return p.City == "" && p.CityLC == "" && p.Lat == nil && p.Lng == nil
}

// canonical fills city_lc: a supplied key is trimmed and lowercased,
// otherwise the city is normalized.
func canonical(p Preference) Preference {
	if p.CityLC != "" {
		p.CityLC = strings.ToLower(strings.TrimSpace(p.CityLC))
	} else {
		p.CityLC = Normalize(p.City)
	}
	return p
}

// Store holds the process-wide location preference mirrored to durable storage.
type Store struct {
	mu      sync.RWMutex
	current Preference
	storage localstore.Storage
	logger  *zap.Logger
}

// NewStore loads the preference from storage. A missing, unreadable or
// malformed record yields the empty default.
func NewStore(storage localstore.Storage, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{storage: storage, logger: log}

	raw, err := storage.Get(StorageKey)
	if err != nil {
		if !errors.Is(err, localstore.ErrNotFound) {
			log.Debug("location_preference_load_failed", zap.Error(err))
		}
		return s
	}
	var p Preference
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		log.Debug("location_preference_discarded", zap.Error(err))
		return s
	}
	s.current = canonical(p)
	return s
}

// Get returns the latest preference.
func (s *Store) Get() Preference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set persists p (with city_lc filled in) and then makes it current.
func (s *Store) Set(p Preference) (Preference, error) {
	p = canonical(p)
	data, err := json.Marshal(p)
	if err != nil {
		return Preference{}, fmt.Errorf("failed to encode location preference: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Set(StorageKey, string(data)); err != nil {
		return Preference{}, fmt.Errorf("failed to persist location preference: %w", err)
	}
	s.current = p
	return p, nil
}

// Clear removes the durable record and resets to the empty default.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.Remove(StorageKey); err != nil {
		return fmt.Errorf("failed to remove location preference: %w", err)
	}
	s.current = Preference{}
	return nil
}
