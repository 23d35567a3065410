package flowstate

import (
	"errors"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu     sync.RWMutex
	states map[string]*FlowState
}

// NewInMemoryRepo creates a new in-memory flow state repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		states: make(map[string]*FlowState),
	}
}

// Upsert stores or updates a flow state
func (r *InMemoryRepo) Upsert(state *FlowState) error {
	if state == nil {
		return errors.New("state cannot be nil")
	}
	if state.State == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy to prevent external modifications
	c := *state
	r.states[state.State] = &c
	return nil
}

// Get retrieves a flow state by its state parameter
func (r *InMemoryRepo) Get(state string) (*FlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fs, exists := r.states[state]
	if !exists {
		return nil, ErrStateNotFound
	}
	c := *fs
	return &c, nil
}

func (r *InMemoryRepo) MarkConsumed(state, codeHash string, at time.Time) (*FlowState, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fs, exists := r.states[state]
	if !exists {
		return nil, false, ErrStateNotFound
	}
	if fs.Consumed() {
		c := *fs
		return &c, false, nil
	}
	fs.ConsumedCodeHash = codeHash
	fs.ConsumedAt = at
	c := *fs
	return &c, true, nil
}

// Delete removes a flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

// DeleteExpired removes states created before the cutoff
func (r *InMemoryRepo) DeleteExpired(before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, fs := range r.states {
		if fs.CreatedAt.Before(before) {
			delete(r.states, k)
		}
	}
	return nil
}
