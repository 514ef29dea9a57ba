package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key doesn't exist in a scope
var ErrNotFound = errors.New("not found")

// Store is durable key/value storage partitioned by scope. pkce-front uses one
// scope per browser session, holding that session's persisted tokens.
type Store interface {
	Get(ctx context.Context, scope, key string) (string, error)
	Set(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error

	// CleanupExpired drops scopes not written for longer than olderThan.
	// Backends with native expiry report zero.
	CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}
