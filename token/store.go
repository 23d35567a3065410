package token

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-ledger-sync/internal/errors"
)

// Reader is the read-only view handed to everything except the session manager.
type Reader interface {
	// Get returns the current record or errors.ErrTokenNotFound
	Get(ctx context.Context) (*Record, error)
}

// Store is the single-writer credential store. Only the session manager holds one.
type Store interface {
	Reader

	// Set replaces the current record
	Set(ctx context.Context, record *Record) error

	// Clear removes the current record; clearing an empty store is not an error
	Clear(ctx context.Context) error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	record *Record
	lock   sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (*Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.record == nil {
		return nil, errors.ErrTokenNotFound
	}
	return s.record.Copy(), nil
}

func (s *MemoryStore) Set(_ context.Context, record *Record) error {
	if record == nil || record.AccessToken == "" {
		return errors.ErrInvalidTokenRecord
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record = record.Copy()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.record = nil
	return nil
}
