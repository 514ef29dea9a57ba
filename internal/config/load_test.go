package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {
    "baseURL": "https://app.test",
    "addr": ":8080",
    "sessionSecret": {"$env": "TEST_SESSION_SECRET"},
    "profileUrl": "http://localhost:8081/me"
  },
  "provider": {
    "clientId": "abc",
    "authorizationUrl": "http://localhost:8081/authorize",
    "tokenUrl": "http://localhost:8081/token"
  }
}`

func TestLoad_MinimalConfigGetsDefaults(t *testing.T) {
	t.Setenv("TEST_SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "pkce-front", cfg.App.Name)
	assert.Equal(t, Secret("0123456789abcdef0123456789abcdef"), cfg.App.SessionSecret)
	assert.Equal(t, 30*time.Minute, cfg.App.SessionIdleTimeout)
	assert.Equal(t, 10*time.Minute, cfg.App.LoginAttemptTTL)
	assert.Equal(t, "/dashboard", cfg.App.LandingPath)
	assert.Equal(t, StorageKindMemory, cfg.App.Storage.Kind)

	assert.Equal(t, ProviderKindJSON, cfg.Provider.Kind)
	assert.Equal(t, "/auth/callback", cfg.Provider.CallbackPath)
	assert.Equal(t, "https://app.test/auth/callback", cfg.Provider.RedirectURI)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Provider.Scopes)
	assert.Nil(t, cfg.Backend)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("TEST_SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	tests := []struct {
		name        string
		content     string
		errContains string
	}{
		{
			name:        "missing_version",
			content:     `{"app": {}}`,
			errContains: "config version is required",
		},
		{
			name:        "wrong_version",
			content:     `{"version": "v2", "app": {}}`,
			errContains: "unsupported config version",
		},
		{
			name: "plain_text_session_secret",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "sessionSecret": "plain", "profileUrl": "http://localhost/me"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			errContains: "app.sessionSecret must use environment variable reference",
		},
		{
			name: "unset_env_var",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "sessionSecret": {"$env": "TEST_UNSET_SECRET"}, "profileUrl": "http://localhost/me"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			errContains: "environment variable TEST_UNSET_SECRET not set",
		},
		{
			name: "json_provider_without_token_url",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "sessionSecret": {"$env": "TEST_SESSION_SECRET"}, "profileUrl": "http://localhost/me"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a"}
}`,
			errContains: "authorizationUrl and tokenUrl are required",
		},
		{
			name: "redis_without_encryption_key",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "sessionSecret": {"$env": "TEST_SESSION_SECRET"}, "profileUrl": "http://localhost/me",
          "storage": {"kind": "redis", "redisAddr": "localhost:6379"}},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			errContains: "storage.encryptionKey must be exactly 32 characters",
		},
		{
			name: "bad_duration",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "sessionSecret": {"$env": "TEST_SESSION_SECRET"}, "profileUrl": "http://localhost/me",
          "loginAttemptTtl": "ten minutes"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			errContains: "parsing loginAttemptTtl",
		},
		{
			name: "external_landing_path",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "sessionSecret": {"$env": "TEST_SESSION_SECRET"}, "profileUrl": "http://localhost/me",
          "landingPath": "//evil.test"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			errContains: "landingPath must be a local path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestLoad_RedisStorage(t *testing.T) {
	t.Setenv("TEST_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("TEST_ENCRYPTION_KEY", "abcdefghijklmnopqrstuvwxyz012345")
	t.Setenv("TEST_REDIS_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {
    "baseURL": "https://app.test/",
    "addr": ":8080",
    "sessionSecret": {"$env": "TEST_SESSION_SECRET"},
    "profileUrl": "http://localhost:8081/me",
    "storage": {
      "kind": "redis",
      "redisAddr": "localhost:6379",
      "redisPassword": {"$env": "TEST_REDIS_PASSWORD"},
      "redisDb": 2,
      "tokenTtl": "1h",
      "encryptionKey": {"$env": "TEST_ENCRYPTION_KEY"}
    }
  },
  "provider": {
    "kind": "oidc",
    "clientId": "abc",
    "discoveryUrl": "https://idp.test/.well-known/openid-configuration",
    "callbackPath": "/cb"
  }
}`))
	require.NoError(t, err)

	assert.Equal(t, StorageKindRedis, cfg.App.Storage.Kind)
	assert.Equal(t, 2, cfg.App.Storage.RedisDB)
	assert.Equal(t, Secret("hunter2"), cfg.App.Storage.RedisPassword)
	assert.Equal(t, time.Hour, cfg.App.Storage.TokenTTL)
	assert.Equal(t, "https://app.test/cb", cfg.Provider.RedirectURI)
}

func TestLoadBackend(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "backend-signing-secret-32-bytes!!")

	path := writeConfig(t, `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"sessionSecret": {"$env": "NOT_SET_FOR_BACKEND"}},
  "backend": {
    "issuer": "http://localhost:8081",
    "jwtSecret": {"$env": "TEST_JWT_SECRET"},
    "allowedOrigins": ["https://app.test"],
    "clients": [{"id": "abc", "redirectUris": ["https://app.test/auth/callback"]}],
    "user": {"id": "u1", "name": "Ada", "email": "ada@example.com", "extra": {"role": "admin"}}
  }
}`)

	cfg, err := LoadBackend(path)
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 60, cfg.TokenRateLimit)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, "abc", cfg.Clients[0].ID)
	assert.Equal(t, "u1", cfg.User.ID)
	assert.Equal(t, "admin", cfg.User.Extra["role"])
}

func TestValidateBackendConfig(t *testing.T) {
	valid := func() *BackendConfig {
		return &BackendConfig{
			Addr:      ":8081",
			Issuer:    "http://localhost:8081",
			JWTSecret: "backend-signing-secret-32-bytes!!",
			Clients:   []ClientRegistration{{ID: "abc", RedirectURIs: []string{"https://app.test/auth/callback"}}},
			User:      DemoUser{ID: "u1"},
		}
	}

	require.NoError(t, ValidateBackendConfig(valid()))

	short := valid()
	short.JWTSecret = "short"
	assert.ErrorContains(t, ValidateBackendConfig(short), "jwtSecret must be at least 32 characters")

	dup := valid()
	dup.Clients = append(dup.Clients, dup.Clients[0])
	assert.ErrorContains(t, ValidateBackendConfig(dup), "duplicate client id")

	badURI := valid()
	badURI.Clients[0].RedirectURIs = []string{"javascript:alert(1)"}
	assert.ErrorContains(t, ValidateBackendConfig(badURI), "must use http or https")

	noUser := valid()
	noUser.User.ID = ""
	assert.ErrorContains(t, ValidateBackendConfig(noUser), "user.id is required")

	badEmail := valid()
	badEmail.User.Email = "ada@localhost"
	assert.ErrorContains(t, ValidateBackendConfig(badEmail), "user.email is not a valid address")

	badHash := valid()
	badHash.Clients[0].SecretHash = "plaintext"
	assert.ErrorContains(t, ValidateBackendConfig(badHash), "secretHash is not a bcrypt hash")

	hash, err := bcrypt.GenerateFromPassword([]byte("client-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	confidential := valid()
	confidential.Clients[0].SecretHash = string(hash)
	assert.NoError(t, ValidateBackendConfig(confidential))
}
