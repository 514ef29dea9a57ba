package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_GetSetDelete(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	_, err := store.Get(ctx, "s1", "authToken")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "s1", "authToken", "tok1"))
	require.NoError(t, store.Set(ctx, "s2", "authToken", "tok2"))

	value, err := store.Get(ctx, "s1", "authToken")
	require.NoError(t, err)
	assert.Equal(t, "tok1", value)

	// scopes are isolated
	value, err = store.Get(ctx, "s2", "authToken")
	require.NoError(t, err)
	assert.Equal(t, "tok2", value)

	require.NoError(t, store.Delete(ctx, "s1", "authToken"))
	_, err = store.Get(ctx, "s1", "authToken")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting what is not there is fine
	require.NoError(t, store.Delete(ctx, "s1", "authToken"))
	require.NoError(t, store.Delete(ctx, "missing", "authToken"))
}

func TestMemoryStorage_CleanupExpired(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, "old", "authToken", "tok-old"))

	now = now.Add(2 * time.Hour)
	require.NoError(t, store.Set(ctx, "fresh", "authToken", "tok-fresh"))

	count, err := store.CleanupExpired(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.Get(ctx, "old", "authToken")
	assert.ErrorIs(t, err, ErrNotFound)
	value, err := store.Get(ctx, "fresh", "authToken")
	require.NoError(t, err)
	assert.Equal(t, "tok-fresh", value)
}

func TestScopedStore(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	scoped := Scoped(store, "browser-1")

	_, ok, err := scoped.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, scoped.Set(ctx, "authToken", "tok1"))
	value, ok, err := scoped.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", value)

	// writes land in the underlying scope
	raw, err := store.Get(ctx, "browser-1", "authToken")
	require.NoError(t, err)
	assert.Equal(t, "tok1", raw)

	require.NoError(t, scoped.Remove(ctx, "authToken"))
	_, ok, err = scoped.Get(ctx, "authToken")
	require.NoError(t, err)
	assert.False(t, ok)
}
