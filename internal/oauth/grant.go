package oauth

import (
	"context"
	"sync"
	"time"
)

type Grant struct {
	Code          string
	ClientID      string
	RedirectURI   string
	Subject       string
	Scopes        []string
	PKCEChallenge string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

type AuthorizeParams struct {
	ClientID      string   `json:"client_id"`
	RedirectURI   string   `json:"redirect_uri"`
	State         string   `json:"state"`
	Scopes        []string `json:"scopes,omitempty"`
	PKCEChallenge string   `json:"pkce_challenge"`
}

// GrantStore keeps issued authorization codes until they are redeemed or expire
type GrantStore struct {
	mu     sync.Mutex
	grants map[string]*Grant
	now    func() time.Time
}

func NewGrantStore() *GrantStore {
	return &GrantStore{
		grants: make(map[string]*Grant),
		now:    time.Now,
	}
}

func (s *GrantStore) Put(grant *Grant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grant.Code] = grant
}

// Consume removes and returns the grant for code. A code can be consumed once.
func (s *GrantStore) Consume(code string) (*Grant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[code]
	if ok {
		delete(s.grants, code)
	}
	return grant, ok
}

// Sweep drops expired grants. Its signature matches storage.SweepFunc.
func (s *GrantStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for code, grant := range s.grants {
		if now.After(grant.ExpiresAt) {
			delete(s.grants, code)
			removed++
		}
	}
	return removed, nil
}

func (s *GrantStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}
