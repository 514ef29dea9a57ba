package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/pkce-front/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const appBaseURL = "https://app.test"

// testStack runs the stub backend and the client application against it
type testStack struct {
	backend *httptest.Server
	front   *httptest.Server
	browser *http.Client
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	// plain http cookies for the test servers
	t.Setenv("PKCE_FRONT_ENV", "development")

	backendCfg := config.BackendConfig{
		Addr:           ":0",
		Issuer:         "http://backend.test",
		JWTSecret:      config.Secret(strings.Repeat("b", 32)),
		TokenTTL:       time.Hour,
		TokenRateLimit: 600,
		Clients: []config.ClientRegistration{{
			ID:           "pkce-front",
			RedirectURIs: []string{appBaseURL + "/auth/callback"},
		}},
		User: config.DemoUser{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com"},
	}
	b, err := NewBackend(backendCfg)
	require.NoError(t, err)
	backendSrv := httptest.NewServer(b.Handler())
	t.Cleanup(backendSrv.Close)

	cfg := config.Config{
		App: config.AppConfig{
			BaseURL:       appBaseURL,
			Addr:          ":0",
			SessionSecret: config.Secret(strings.Repeat("s", 32)),
			ProfileURL:    backendSrv.URL + "/me",
			Storage:       config.StorageConfig{Kind: config.StorageKindMemory},
		},
		Provider: config.ProviderConfig{
			Kind:             config.ProviderKindJSON,
			ClientID:         "pkce-front",
			AuthorizationURL: backendSrv.URL + "/authorize",
			TokenURL:         backendSrv.URL + "/token",
		},
	}
	config.ApplyDefaults(&cfg)
	require.NoError(t, config.ValidateConfig(&cfg))

	front, err := NewPKCEFront(context.Background(), cfg)
	require.NoError(t, err)
	frontSrv := httptest.NewServer(front.Handler())
	t.Cleanup(frontSrv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testStack{
		backend: backendSrv,
		front:   frontSrv,
		browser: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (s *testStack) get(t *testing.T, target string) *http.Response {
	t.Helper()
	resp, err := s.browser.Get(target)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// callbackURL maps the redirect to the public app URL onto the test server
func (s *testStack) callbackURL(t *testing.T, location string) string {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	require.Equal(t, "app.test", u.Host)
	return s.front.URL + u.Path + "?" + u.RawQuery
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestLoginAgainstBackend(t *testing.T) {
	s := newTestStack(t)

	resp := s.get(t, s.front.URL+"/dashboard")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login?from=%2Fdashboard", resp.Header.Get("Location"))

	resp = s.get(t, s.front.URL+"/login/start?from=/dashboard")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	authorizeURL := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(authorizeURL, s.backend.URL+"/authorize?"))

	resp = s.get(t, authorizeURL)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	callback := s.callbackURL(t, resp.Header.Get("Location"))

	resp = s.get(t, callback)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	resp = s.get(t, s.front.URL+"/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Ada Lovelace")

	// replaying the callback does not log in twice
	resp = s.get(t, callback)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginAgainstBackend_CallbackReplayedInFreshBrowser(t *testing.T) {
	s := newTestStack(t)

	resp := s.get(t, s.front.URL+"/login/start")
	resp = s.get(t, resp.Header.Get("Location"))
	callback := s.callbackURL(t, resp.Header.Get("Location"))
	resp = s.get(t, callback)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	// a fresh browser replaying the captured callback has no pending login
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	s.browser.Jar = jar

	resp = s.get(t, callback)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Authentication Error")
}

func TestHealthDoesNotCreateSession(t *testing.T) {
	s := newTestStack(t)

	resp := s.get(t, s.front.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())

	resp = s.get(t, s.backend.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
