package authsession

import (
	"context"
	"sync"
	"time"

	"github.com/dgellow/pkce-front/internal/idp"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/dgellow/pkce-front/internal/storage"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultIdleTimeout is how long an unused session stays in memory
	DefaultIdleTimeout = 30 * time.Minute

	// bootstrapTimeout bounds the profile check of a new session
	bootstrapTimeout = 30 * time.Second
)

// Manager owns the sessions of all browser sessions, keyed by session ID.
// Sessions are bootstrapped once, on first use, and dropped from memory after
// sitting idle. Durable storage is left alone on eviction.
type Manager struct {
	provider    idp.Provider
	profiles    ProfileFetcher
	store       storage.Store
	idleTimeout time.Duration
	sessionOpts []Option
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*managedSession
	group    singleflight.Group
}

type managedSession struct {
	session  *Session
	lastUsed time.Time
}

// ManagerOption configures the manager
type ManagerOption func(*Manager)

// WithIdleTimeout sets how long a session may sit unused before eviction
func WithIdleTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = timeout
	}
}

// WithSessionOptions applies opts to every session the manager creates
func WithSessionOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.sessionOpts = append(m.sessionOpts, opts...)
	}
}

// WithManagerClock sets the time source used for idle tracking (for testing)
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager backed by store
func NewManager(provider idp.Provider, profiles ProfileFetcher, store storage.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:    provider,
		profiles:    profiles,
		store:       store,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*managedSession),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the session for id, creating and bootstrapping it on first use.
// Concurrent first requests for one id share a single bootstrap.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	if s, ok := m.touch(id); ok {
		return s
	}

	v, _, _ := m.group.Do(id, func() (any, error) {
		if s, ok := m.touch(id); ok {
			return s, nil
		}

		s := NewSession(id, m.provider, m.profiles, storage.Scoped(m.store, id), m.sessionOpts...)

		// a cancelled request must not look like a rejected token
		bootCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bootstrapTimeout)
		defer cancel()
		s.Bootstrap(bootCtx)

		m.mu.Lock()
		m.sessions[id] = &managedSession{session: s, lastUsed: m.now()}
		m.mu.Unlock()

		log.LogTraceWithFields("authsession", "Created session", map[string]any{
			"session":         shortID(id),
			"isAuthenticated": s.Snapshot().IsAuthenticated,
		})
		return s, nil
	})
	return v.(*Session)
}

// Lookup returns an existing session without creating one
func (m *Manager) Lookup(id string) (*Session, bool) {
	return m.touch(id)
}

func (m *Manager) touch(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	ms.lastUsed = m.now()
	return ms.session, true
}

// Remove drops a session from memory
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of sessions in memory
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle drops sessions unused for longer than the idle timeout. Its
// signature matches storage.SweepFunc so it can run under a CleanupManager.
func (m *Manager) EvictIdle(_ context.Context) (int, error) {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, ms := range m.sessions {
		if ms.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted, nil
}
