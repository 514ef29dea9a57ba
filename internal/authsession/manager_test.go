package authsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/pkce-front/internal/idp"
	"github.com/dgellow/pkce-front/internal/storage"
	"github.com/dgellow/pkce-front/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManager_GetBootstrapsOnce(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(context.Background(), "browser-1", KeyAuthToken, "tok1"))

	release := make(chan struct{})
	profiles := &testutil.MockProfileFetcher{}
	profiles.On("FetchProfile", mock.Anything, "tok1").
		Run(func(mock.Arguments) { <-release }).
		Return(&idp.Profile{ID: "u1"}, nil).Once()

	m := NewManager(newMockProvider(), profiles, store)

	const workers = 10
	results := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.Get(context.Background(), "browser-1")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, s := range results {
		assert.Same(t, results[0], s)
	}
	assert.True(t, results[0].Snapshot().IsAuthenticated)
	assert.Equal(t, 1, m.Len())
	profiles.AssertNumberOfCalls(t, "FetchProfile", 1)
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(context.Background(), "browser-1", KeyAuthToken, "tok1"))

	profiles := &testutil.MockProfileFetcher{}
	profiles.On("FetchProfile", mock.Anything, "tok1").Return(&idp.Profile{ID: "u1"}, nil)

	m := NewManager(newMockProvider(), profiles, store)
	one := m.Get(context.Background(), "browser-1")
	two := m.Get(context.Background(), "browser-2")

	assert.NotSame(t, one, two)
	assert.True(t, one.Snapshot().IsAuthenticated)
	assert.False(t, two.Snapshot().IsAuthenticated)

	two.Logout(context.Background())
	value, err := store.Get(context.Background(), "browser-1", KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok1", value)
}

func TestManager_CancelledRequestDoesNotDropToken(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(context.Background(), "browser-1", KeyAuthToken, "tok1"))

	profiles := &testutil.MockProfileFetcher{}
	profiles.On("FetchProfile", mock.Anything, "tok1").
		Run(func(args mock.Arguments) {
			assert.NoError(t, args.Get(0).(context.Context).Err())
		}).
		Return(&idp.Profile{ID: "u1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(newMockProvider(), profiles, store)
	s := m.Get(ctx, "browser-1")
	assert.True(t, s.Snapshot().IsAuthenticated)
}

func TestManager_EvictIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(context.Background(), "old", KeyAuthToken, "tok1"))

	profiles := &testutil.MockProfileFetcher{}
	profiles.On("FetchProfile", mock.Anything, "tok1").Return(&idp.Profile{ID: "u1"}, nil)

	m := NewManager(newMockProvider(), profiles, store,
		WithIdleTimeout(30*time.Minute), WithManagerClock(clock))

	m.Get(context.Background(), "old")
	now = now.Add(20 * time.Minute)
	m.Get(context.Background(), "fresh")
	now = now.Add(15 * time.Minute)

	evicted, err := m.EvictIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, ok := m.Lookup("old")
	assert.False(t, ok)
	_, ok = m.Lookup("fresh")
	assert.True(t, ok)

	// eviction leaves durable storage alone, so the session comes back
	value, err := store.Get(context.Background(), "old", KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, "tok1", value)
	assert.True(t, m.Get(context.Background(), "old").Snapshot().IsAuthenticated)
}

func TestManager_EvictIdleUnderCleanupManager(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	m := NewManager(newMockProvider(), &testutil.MockProfileFetcher{}, storage.NewMemoryStorage(),
		WithIdleTimeout(time.Minute), WithManagerClock(clock))
	m.Get(context.Background(), "browser-1")

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	cm := storage.NewCleanupManager("sessions", storage.SweepFunc(m.EvictIdle), time.Hour)
	cm.Start(context.Background())
	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, 5*time.Millisecond)
	cm.Stop()
}

func TestManager_SessionOptions(t *testing.T) {
	m := NewManager(newMockProvider(), &testutil.MockProfileFetcher{}, storage.NewMemoryStorage(),
		WithSessionOptions(WithSecretSource(fixedSecrets("state123"))))

	s := m.Get(context.Background(), "browser-1")
	require.NoError(t, s.InitiateLogin(context.Background(), &capturedNavigation{}))
	assert.Equal(t, "state123", s.pendingState)
}

func TestManager_UnreadableStoreLeavesSessionUnauthenticated(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("Get", mock.Anything, "browser-1", KeyAuthToken).Return("", errors.New("connection refused"))

	profiles := &testutil.MockProfileFetcher{}
	m := NewManager(newMockProvider(), profiles, store)

	s := m.Get(context.Background(), "browser-1")
	snap := s.Snapshot()
	assert.Equal(t, Unauthenticated, snap.State)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Error)

	// a read failure is not a rejected token, so nothing is deleted
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	profiles.AssertNotCalled(t, "FetchProfile", mock.Anything, mock.Anything)
}
