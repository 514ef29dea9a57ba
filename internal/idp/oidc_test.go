package idp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOIDCProvider_WithDirectEndpoints(t *testing.T) {
	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		ProviderType:     "custom",
		AuthorizationURL: "https://idp.example.com/authorize",
		TokenURL:         "https://idp.example.com/token",
		ClientID:         "client-id",
		ClientSecret:     "client-secret",
		RedirectURI:      "https://example.com/callback",
	})

	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "custom", provider.Type())
	assert.Empty(t, provider.Issuer())
}

func TestNewOIDCProvider_WithDiscovery(t *testing.T) {
	discovery := oidcDiscoveryDocument{
		Issuer:                        "https://idp.example.com",
		AuthorizationEndpoint:         "https://idp.example.com/authorize",
		TokenEndpoint:                 "https://idp.example.com/token",
		UserInfoEndpoint:              "https://idp.example.com/userinfo",
		CodeChallengeMethodsSupported: []string{"plain", "S256"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(discovery)
		require.NoError(t, err)
	}))
	defer server.Close()

	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		DiscoveryURL: server.URL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://example.com/callback",
	})

	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "oidc", provider.Type())
	assert.Equal(t, "https://idp.example.com", provider.Issuer())
	assert.Contains(t, provider.AuthURL("challenge", "state"), "https://idp.example.com/authorize")
}

func TestNewOIDCProvider_MissingEndpoints(t *testing.T) {
	_, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: "https://idp.example.com/authorize",
		ClientID:         "client-id",
		RedirectURI:      "https://example.com/callback",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "discoveryUrl or both endpoints")
}

func TestNewOIDCProvider_DiscoveryErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		doc         oidcDiscoveryDocument
		errContains string
	}{
		{
			name:        "missing_endpoints",
			status:      http.StatusOK,
			doc:         oidcDiscoveryDocument{Issuer: "https://idp.example.com"},
			errContains: "missing required endpoints",
		},
		{
			name:   "no_s256",
			status: http.StatusOK,
			doc: oidcDiscoveryDocument{
				AuthorizationEndpoint:         "https://idp.example.com/authorize",
				TokenEndpoint:                 "https://idp.example.com/token",
				CodeChallengeMethodsSupported: []string{"plain"},
			},
			errContains: "does not support S256",
		},
		{
			name:        "not_found",
			status:      http.StatusNotFound,
			errContains: "discovery endpoint returned status 404",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.doc)
			}))
			defer server.Close()

			_, err := NewOIDCProvider(context.Background(), OIDCConfig{
				DiscoveryURL: server.URL,
				ClientID:     "client-id",
				RedirectURI:  "https://example.com/callback",
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestOIDCProvider_AuthURL(t *testing.T) {
	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: "https://idp.example.com/authorize",
		TokenURL:         "https://idp.example.com/token",
		ClientID:         "client-id",
		RedirectURI:      "https://example.com/callback",
	})
	require.NoError(t, err)

	authURL := provider.AuthURL("the-challenge", "test-state")

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "test-state", q.Get("state"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "the-challenge", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
}

func TestOIDCProvider_ExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "goodcode", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-xyz", r.PostForm.Get("code_verifier"))
		// public client: client_id travels in the body
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Empty(t, r.Header.Get("Authorization"))

		if r.PostForm.Get("code") != "goodcode" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok1","token_type":"Bearer","expires_in":60}`))
	}))
	defer server.Close()

	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: server.URL + "/authorize",
		TokenURL:         server.URL,
		ClientID:         "client-id",
		RedirectURI:      "https://example.com/callback",
	})
	require.NoError(t, err)

	token, err := provider.ExchangeCode(context.Background(), "goodcode", "verifier-xyz")
	require.NoError(t, err)
	assert.Equal(t, "tok1", token.AccessToken)
}

func TestOIDCProvider_ExchangeCode_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"PKCE verification failed"}`))
	}))
	defer server.Close()

	provider, err := NewOIDCProvider(context.Background(), OIDCConfig{
		AuthorizationURL: server.URL + "/authorize",
		TokenURL:         server.URL,
		ClientID:         "client-id",
		ClientSecret:     "secret",
		RedirectURI:      "https://example.com/callback",
	})
	require.NoError(t, err)

	_, err = provider.ExchangeCode(context.Background(), "badcode", "verifier")
	require.Error(t, err)

	var exchangeErr *ExchangeError
	require.True(t, errors.As(err, &exchangeErr))
	assert.Equal(t, http.StatusBadRequest, exchangeErr.StatusCode)
	assert.Contains(t, exchangeErr.Body, "invalid_grant")
}
