// Package authsession owns the authentication state of one browser session:
// starting a PKCE login, completing the callback exchange, restoring a
// persisted token at startup and logging out.
package authsession

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dgellow/pkce-front/internal/idp"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/dgellow/pkce-front/internal/pkce"
)

// Storage keys of the persisted token
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
)

// DefaultLoginAttemptTTL is how long a pending login blocks a new one
const DefaultLoginAttemptTTL = 10 * time.Minute

// State is the position of a session in the login flow
type State int

const (
	Unauthenticated State = iota
	LoginPending
	CallbackPending
	Authenticated
	Errored
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case LoginPending:
		return "login_pending"
	case CallbackPending:
		return "callback_pending"
	case Authenticated:
		return "authenticated"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TokenStorage is the durable key/value scope of one browser session
type TokenStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ProfileFetcher loads the user profile for an access token
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accessToken string) (*idp.Profile, error)
}

// Navigator performs the full-page redirect to the authorization endpoint
type Navigator interface {
	Navigate(url string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(url string)

// Navigate calls f(url)
func (f NavigatorFunc) Navigate(url string) {
	f(url)
}

// SecretSource produces the secrets of one login attempt
type SecretSource func() (*pkce.Secrets, error)

// Option configures a Session
type Option func(*Session)

// WithLoginAttemptTTL sets how long a pending login blocks InitiateLogin
func WithLoginAttemptTTL(ttl time.Duration) Option {
	return func(s *Session) {
		s.loginAttemptTTL = ttl
	}
}

// WithSecretSource replaces the PKCE secret generator (for testing)
func WithSecretSource(source SecretSource) Option {
	return func(s *Session) {
		s.secrets = source
	}
}

// WithClock sets the time source (for testing)
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Snapshot is an immutable copy of a session's observable state
type Snapshot struct {
	State           State        `json:"state"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	Loading         bool         `json:"loading"`
	User            *idp.Profile `json:"user,omitempty"`
	Error           string       `json:"error,omitempty"`
	ErrorKind       ErrorKind    `json:"errorKind,omitempty"`
	LoginPending    bool         `json:"loginPending"`
}

// Session is the auth state machine of one browser session. All mutations go
// through Bootstrap, InitiateLogin, HandleCallback, Logout and CancelLogin.
// Network calls run without holding mu; epoch detects that a callback was
// overtaken by Logout, CancelLogin or a new InitiateLogin while it waited.
type Session struct {
	id       string
	provider idp.Provider
	profiles ProfileFetcher
	tokens   TokenStorage

	loginAttemptTTL time.Duration
	secrets         SecretSource
	now             func() time.Time

	mu              sync.Mutex
	state           State
	user            *idp.Profile
	loading         bool
	err             *AuthError
	pendingVerifier string
	pendingState    string
	pendingSince    time.Time
	epoch           uint64
	bootstrapped    bool
}

// NewSession creates a session in the Unauthenticated state with loading set
// until Bootstrap completes.
func NewSession(id string, provider idp.Provider, profiles ProfileFetcher, tokens TokenStorage, opts ...Option) *Session {
	s := &Session{
		id:              id,
		provider:        provider,
		profiles:        profiles,
		tokens:          tokens,
		loginAttemptTTL: DefaultLoginAttemptTTL,
		secrets:         pkce.NewSecrets,
		now:             time.Now,
		state:           Unauthenticated,
		loading:         true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the browser session identifier
func (s *Session) ID() string {
	return s.id
}

// Bootstrap restores the session from the persisted token. It never fails:
// any problem leaves the session Unauthenticated. Only the first call has
// an effect.
func (s *Session) Bootstrap(ctx context.Context) {
	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return
	}
	s.bootstrapped = true
	s.loading = true
	epoch := s.epoch
	s.mu.Unlock()

	token, ok, err := s.tokens.Get(ctx, KeyAuthToken)
	if err != nil {
		log.LogWarnWithFields("authsession", "Failed to read persisted token", map[string]any{
			"session": shortID(s.id),
			"error":   err.Error(),
		})
		s.finishBootstrap(epoch, nil)
		return
	}
	if !ok || token == "" {
		s.finishBootstrap(epoch, nil)
		return
	}

	profile, err := s.profiles.FetchProfile(ctx, token)
	if err != nil {
		log.LogWarnWithFields("authsession", "Persisted token rejected, discarding", map[string]any{
			"session": shortID(s.id),
			"error":   err.Error(),
		})
		s.removeTokens(ctx)
		s.finishBootstrap(epoch, nil)
		return
	}

	log.LogDebugWithFields("authsession", "Restored session from persisted token", map[string]any{
		"session": shortID(s.id),
		"user":    profile.ID,
	})
	s.finishBootstrap(epoch, profile)
}

func (s *Session) finishBootstrap(epoch uint64, profile *idp.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.state != Unauthenticated {
		return
	}
	s.loading = false
	if profile != nil {
		s.state = Authenticated
		s.user = profile
	}
}

// InitiateLogin generates fresh PKCE secrets, records them as pending and
// navigates to the authorization endpoint. It returns ErrLoginInProgress while
// a callback is being handled or a recent attempt is still pending, and an
// *AuthError of kind SecureRandomUnavailable when no secrets can be generated.
func (s *Session) InitiateLogin(ctx context.Context, nav Navigator) error {
	s.mu.Lock()

	switch s.state {
	case CallbackPending:
		s.mu.Unlock()
		return ErrLoginInProgress
	case LoginPending:
		age := s.now().Sub(s.pendingSince)
		if age < s.loginAttemptTTL {
			s.mu.Unlock()
			return ErrLoginInProgress
		}
		log.LogInfoWithFields("authsession", "Abandoning stale login attempt", map[string]any{
			"session": shortID(s.id),
			"age":     age.String(),
		})
	}

	secrets, err := s.secrets()
	if err != nil {
		s.mu.Unlock()
		log.LogErrorWithFields("authsession", "Cannot generate login secrets", map[string]any{
			"session": shortID(s.id),
			"error":   err.Error(),
		})
		return newAuthError(KindSecureRandomUnavailable, msgRandomUnusable, err)
	}

	s.epoch++
	s.state = LoginPending
	s.loading = false
	s.user = nil
	s.err = nil
	s.pendingVerifier = secrets.Verifier
	s.pendingState = secrets.State
	s.pendingSince = s.now()
	authURL := s.provider.AuthURL(secrets.Challenge, secrets.State)
	s.mu.Unlock()

	log.LogDebugWithFields("authsession", "Login initiated", map[string]any{
		"session":  shortID(s.id),
		"provider": s.provider.Type(),
	})
	nav.Navigate(authURL)
	return nil
}

// HandleCallback completes a login with the code and state returned by the
// authorization endpoint. It reports whether the session ended Authenticated;
// failures are recorded on the session and never returned.
func (s *Session) HandleCallback(ctx context.Context, code, receivedState string) bool {
	s.mu.Lock()
	if s.state == CallbackPending {
		s.mu.Unlock()
		log.LogWarnWithFields("authsession", "Ignoring duplicate callback", map[string]any{
			"session": shortID(s.id),
		})
		return false
	}

	s.state = CallbackPending
	s.loading = true

	if code == "" {
		s.failLocked(newAuthError(KindMissingAuthorizationCode, msgMissingCode, nil))
		s.mu.Unlock()
		return false
	}
	if s.pendingState == "" || receivedState != s.pendingState {
		s.failLocked(newAuthError(KindCsrfStateMismatch, msgStateMismatch, nil))
		s.mu.Unlock()
		return false
	}

	verifier := s.pendingVerifier
	epoch := s.epoch
	s.mu.Unlock()

	token, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return s.fail(epoch, newAuthError(KindTokenExchangeFailed, msgExchangeFailed, err))
	}

	if !s.current(epoch) {
		return false
	}
	if err := s.persistToken(ctx, token.AccessToken, token.RefreshToken); err != nil {
		return s.fail(epoch, newAuthError(KindTokenExchangeFailed, msgExchangeFailed, err))
	}
	// overtaken while writing: Logout may already have cleared storage
	if !s.current(epoch) {
		s.discardToken(ctx, token.AccessToken, token.RefreshToken)
		return false
	}

	profile, err := s.profiles.FetchProfile(ctx, token.AccessToken)
	if err != nil {
		return s.fail(epoch, newAuthError(KindProfileFetchFailed, msgProfileFailed, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.state = Authenticated
	s.user = profile
	s.err = nil
	s.loading = false
	s.clearPendingLocked()

	log.LogInfoWithFields("authsession", "Login completed", map[string]any{
		"session": shortID(s.id),
		"user":    profile.ID,
	})
	return true
}

// Logout removes the persisted tokens and resets the session. Storage errors
// are logged.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.state = Unauthenticated
	s.user = nil
	s.err = nil
	s.loading = false
	s.clearPendingLocked()
	s.mu.Unlock()

	s.removeTokens(ctx)
	log.LogDebugWithFields("authsession", "Logged out", map[string]any{
		"session": shortID(s.id),
	})
}

// CancelLogin abandons a pending login or clears a login error. It reports
// whether anything changed.
func (s *Session) CancelLogin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case LoginPending, Errored:
		s.epoch++
		s.state = Unauthenticated
		s.err = nil
		s.loading = false
		s.clearPendingLocked()
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the session's observable state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:           s.state,
		IsAuthenticated: s.state == Authenticated && s.user != nil && s.err == nil,
		Loading:         s.loading,
		LoginPending:    s.pendingState != "",
	}
	if s.user != nil {
		user := *s.user
		user.Extra = maps.Clone(s.user.Extra)
		snap.User = &user
	}
	if s.err != nil {
		snap.Error = s.err.Message
		snap.ErrorKind = s.err.Kind
	}
	return snap
}

// LastError returns the error recorded by the last failed callback, if any
func (s *Session) LastError() *AuthError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) current(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == epoch
}

// fail records err unless the callback was overtaken. It always returns false.
func (s *Session) fail(epoch uint64, err *AuthError) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.failLocked(err)
	return false
}

func (s *Session) failLocked(err *AuthError) {
	s.state = Errored
	s.user = nil
	s.err = err
	s.loading = false
	s.clearPendingLocked()

	log.LogWarnWithFields("authsession", "Login failed", map[string]any{
		"session": shortID(s.id),
		"kind":    string(err.Kind),
		"error":   err.Error(),
	})
}

func (s *Session) clearPendingLocked() {
	s.pendingVerifier = ""
	s.pendingState = ""
	s.pendingSince = time.Time{}
}

// persistToken writes both tokens or neither
func (s *Session) persistToken(ctx context.Context, accessToken, refresh string) error {
	if err := s.tokens.Set(ctx, KeyAuthToken, accessToken); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	if err := s.tokens.Set(ctx, KeyRefreshToken, refresh); err != nil {
		s.removeKey(ctx, KeyAuthToken)
		return err
	}
	return nil
}

// discardToken removes tokens written by an overtaken callback. Keys already
// holding a newer login's tokens are left alone.
func (s *Session) discardToken(ctx context.Context, accessToken, refresh string) {
	written := map[string]string{KeyAuthToken: accessToken, KeyRefreshToken: refresh}
	for _, key := range []string{KeyAuthToken, KeyRefreshToken} {
		if written[key] == "" {
			continue
		}
		value, ok, err := s.tokens.Get(ctx, key)
		if err == nil && (!ok || value != written[key]) {
			continue
		}
		s.removeKey(ctx, key)
	}
	log.LogDebugWithFields("authsession", "Discarded token of overtaken callback", map[string]any{
		"session": shortID(s.id),
	})
}

func (s *Session) removeTokens(ctx context.Context) {
	for _, key := range []string{KeyAuthToken, KeyRefreshToken} {
		s.removeKey(ctx, key)
	}
}

func (s *Session) removeKey(ctx context.Context, key string) {
	if err := s.tokens.Remove(ctx, key); err != nil {
		log.LogWarnWithFields("authsession", "Failed to remove persisted token", map[string]any{
			"session": shortID(s.id),
			"key":     key,
			"error":   err.Error(),
		})
	}
}

// shortID keeps session identifiers out of logs in full
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
