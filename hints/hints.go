// Package hints caches the last known connection state across restarts and page reloads.
// Nothing read from here is authoritative; it only picks the first affordance shown to the user
// while the real connection check runs.
package hints

import (
	"context"
	"sync"
	"time"
)

// Hint is the advisory cache of three flags: authorized, when, and a sealed token blob.
type Hint struct {
	Authorized   bool      `json:"authorized"`
	AuthorizedAt time.Time `json:"authorizedAt"`
	TokenBlob    []byte    `json:"tokenBlob,omitempty"`
}

// Store persists a Hint. Load of an empty store returns the zero Hint and no error.
type Store interface {
	Load(ctx context.Context) (Hint, error)
	Save(ctx context.Context, hint Hint) error
	Clear(ctx context.Context) error
}

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	hint Hint
	lock sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Hint, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	h := s.hint
	h.TokenBlob = append([]byte(nil), s.hint.TokenBlob...)
	return h, nil
}

func (s *MemoryStore) Save(_ context.Context, hint Hint) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	hint.TokenBlob = append([]byte(nil), hint.TokenBlob...)
	s.hint = hint
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.hint = Hint{}
	return nil
}
