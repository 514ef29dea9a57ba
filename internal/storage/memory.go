package storage

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStorage implements Store
var _ Store = (*MemoryStorage)(nil)

type memoryScope struct {
	values    map[string]string
	updatedAt time.Time
}

// MemoryStorage keeps scopes in process memory. Tokens survive page reloads
// but not restarts.
type MemoryStorage struct {
	mu     sync.RWMutex
	scopes map[string]*memoryScope
	now    func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		scopes: make(map[string]*memoryScope),
		now:    time.Now,
	}
}

// Get returns the value stored under key in scope
func (s *MemoryStorage) Get(_ context.Context, scope, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scopes[scope]
	if !ok {
		return "", ErrNotFound
	}
	value, ok := sc.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set stores value under key in scope
func (s *MemoryStorage) Set(_ context.Context, scope, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scopes[scope]
	if !ok {
		sc = &memoryScope{values: make(map[string]string)}
		s.scopes[scope] = sc
	}
	sc.values[key] = value
	sc.updatedAt = s.now()
	return nil
}

// Delete removes key from scope. Missing keys are not an error.
func (s *MemoryStorage) Delete(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scopes[scope]
	if !ok {
		return nil
	}
	delete(sc.values, key)
	if len(sc.values) == 0 {
		delete(s.scopes, scope)
	}
	return nil
}

// CleanupExpired drops scopes that have not been written for olderThan
func (s *MemoryStorage) CleanupExpired(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	count := 0
	for id, sc := range s.scopes {
		if sc.updatedAt.Before(cutoff) {
			delete(s.scopes, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for memory storage
func (s *MemoryStorage) Close() error {
	return nil
}
