package storage

import (
	"context"
	"errors"
)

// ScopedStore binds a Store to one scope. It is what an auth session sees
// as its durable token storage.
type ScopedStore struct {
	store Store
	scope string
}

// Scoped returns a view of store restricted to scope
func Scoped(store Store, scope string) *ScopedStore {
	return &ScopedStore{store: store, scope: scope}
}

// Get returns the value for key; ok is false when it is absent
func (s *ScopedStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.store.Get(ctx, s.scope, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key
func (s *ScopedStore) Set(ctx context.Context, key, value string) error {
	return s.store.Set(ctx, s.scope, key, value)
}

// Remove deletes key
func (s *ScopedStore) Remove(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.scope, key)
}
