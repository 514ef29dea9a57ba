package oauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/pkce-front/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGrantStore_ConsumeOnce(t *testing.T) {
	store := NewGrantStore()
	store.Put(&Grant{Code: "c1", ExpiresAt: time.Now().Add(time.Minute)})

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := store.Consume("c1"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, store.Len())
}

func TestGrantStore_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewGrantStore()
	store.now = func() time.Time { return now }

	store.Put(&Grant{Code: "old", ExpiresAt: now.Add(-time.Second)})
	store.Put(&Grant{Code: "new", ExpiresAt: now.Add(time.Minute)})

	removed, err := store.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := store.Consume("old")
	assert.False(t, ok)
	_, ok = store.Consume("new")
	assert.True(t, ok)
}

func TestClientRegistry(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	registry := NewClientRegistry([]config.ClientRegistration{
		{ID: "public", RedirectURIs: []string{"https://app.test/auth/callback"}},
		{ID: "confidential", SecretHash: string(hash), RedirectURIs: []string{"https://app.test/auth/callback"}},
	})

	public, ok := registry.Lookup("public")
	require.True(t, ok)
	assert.True(t, public.IsPublic())
	assert.NoError(t, ValidateClientSecret("", public))
	assert.NoError(t, ValidateRedirectURI("https://app.test/auth/callback", public))
	assert.Error(t, ValidateRedirectURI("https://app.test/other", public))

	confidential, ok := registry.Lookup("confidential")
	require.True(t, ok)
	assert.False(t, confidential.IsPublic())
	assert.NoError(t, ValidateClientSecret("s3cret", confidential))
	assert.Error(t, ValidateClientSecret("wrong", confidential))

	_, ok = registry.Lookup("missing")
	assert.False(t, ok)
}
