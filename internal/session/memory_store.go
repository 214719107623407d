package session

import (
	"context"
	"sync"
	"time"

	"liveflow/backend/internal/models"
)

type memEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{data: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) set(key string, v []byte) {
	s.mu.Lock()
	s.data[key] = memEntry{value: v, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

func (s *MemoryStore) get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && !s.now().Before(e.expires) {
		delete(s.data, key)
		return nil, false
	}
	return e.value, true
}

// SetRaw stores raw bytes under the preferences key. Used to simulate
// corrupted state.
func (s *MemoryStore) SetRaw(sid string, raw []byte) {
	s.set(prefsKey(sid), raw)
}

func (s *MemoryStore) SaveAgeConfirmation(_ context.Context, sid string) error {
	s.set(ageKey(sid), []byte(ageConfirmedValue))
	return nil
}

func (s *MemoryStore) IsAgeConfirmed(_ context.Context, sid string) (bool, error) {
	v, ok := s.get(ageKey(sid))
	return ok && string(v) == ageConfirmedValue, nil
}

func (s *MemoryStore) SavePreferences(_ context.Context, sid string, prefs models.UserPreferences) error {
	data, err := encodePreferences(prefs)
	if err != nil {
		return err
	}
	s.set(prefsKey(sid), data)
	return nil
}

func (s *MemoryStore) LoadPreferences(_ context.Context, sid string) (*models.UserPreferences, error) {
	raw, ok := s.get(prefsKey(sid))
	if !ok {
		return nil, nil
	}
	return decodePreferences(sid, raw), nil
}

func (s *MemoryStore) End(_ context.Context, sid string) error {
	s.mu.Lock()
	delete(s.data, ageKey(sid))
	delete(s.data, prefsKey(sid))
	s.mu.Unlock()
	return nil
}
