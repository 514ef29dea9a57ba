package testutil

import (
	"context"
	"time"

	"github.com/dgellow/pkce-front/internal/idp"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockProvider is a mock implementation of idp.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Type() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) AuthURL(challenge, state string) string {
	args := m.Called(challenge, state)
	return args.String(0)
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

// MockProfileFetcher is a mock implementation of authsession.ProfileFetcher
type MockProfileFetcher struct {
	mock.Mock
}

func (m *MockProfileFetcher) FetchProfile(ctx context.Context, accessToken string) (*idp.Profile, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.Profile), args.Error(1)
}

// MockTokenStorage is a mock implementation of authsession.TokenStorage
type MockTokenStorage struct {
	mock.Mock
}

func (m *MockTokenStorage) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockTokenStorage) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockTokenStorage) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockStore is a mock implementation of storage.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, scope, key string) (string, error) {
	args := m.Called(ctx, scope, key)
	return args.String(0), args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, scope, key, value string) error {
	args := m.Called(ctx, scope, key, value)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, scope, key string) error {
	args := m.Called(ctx, scope, key)
	return args.Error(0)
}

func (m *MockStore) CleanupExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
