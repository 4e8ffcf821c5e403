package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/dailycrew/agent/session"
)

// MemoryContextStore is an in-memory implementation of ContextStore.
// Suitable for development and testing. Data is lost on restart.
// Contexts are stored encoded so callers never share state with the store.
type MemoryContextStore struct {
	data   map[string][]byte
	mu     sync.RWMutex
	closed bool
}

// NewMemoryContextStore creates a new in-memory context store
func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{data: make(map[string][]byte)}
}

// Close closes the store
func (s *MemoryContextStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryContextStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Load implements ContextStore
func (s *MemoryContextStore) Load(ctx context.Context, userID string) (*session.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	raw, ok := s.data[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(userID, raw)
}

// Save implements ContextStore
func (s *MemoryContextStore) Save(ctx context.Context, c *session.Context) error {
	if c != nil {
		c.Version++
		c.UpdatedAt = time.Now().UTC()
	}
	raw, err := encode(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.data[c.UserID] = raw
	return nil
}

// Delete implements ContextStore
func (s *MemoryContextStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.data, userID)
	return nil
}
