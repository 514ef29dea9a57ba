package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name: "valid",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "profileUrl": "http://localhost/me",
          "sessionSecret": {"$env": "SESSION_SECRET"}},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
		},
		{
			name:       "invalid_json",
			content:    `{"version": `,
			wantErrors: []string{"invalid JSON"},
		},
		{
			name: "plain_secret_and_missing_fields",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"sessionSecret": "hunter2"},
  "provider": {"kind": "json"}
}`,
			wantErrors: []string{
				"baseURL is required",
				"addr is required",
				"profileUrl is required",
				"sessionSecret must use environment variable reference",
				"clientId is required",
				"authorizationUrl is required",
				"tokenUrl is required",
			},
		},
		{
			name: "bash_style_reference",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "profileUrl": "http://localhost/me",
          "sessionSecret": "${SESSION_SECRET}"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			wantErrors:   []string{"found bash-style syntax"},
			wantWarnings: []string{"found bash-style syntax"},
		},
		{
			name: "firestore_storage_needs_project_and_key",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "profileUrl": "http://localhost/me",
          "sessionSecret": {"$env": "SESSION_SECRET"}, "storage": {"kind": "firestore"}},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			wantErrors: []string{"gcpProject is required", "encryptionKey is required for firestore storage"},
		},
		{
			name: "unknown_provider_kind",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "profileUrl": "http://localhost/me",
          "sessionSecret": {"$env": "SESSION_SECRET"}},
  "provider": {"kind": "saml", "clientId": "abc"}
}`,
			wantErrors: []string{"unknown provider kind 'saml'"},
		},
		{
			name: "cleanup_longer_than_idle",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "profileUrl": "http://localhost/me",
          "sessionSecret": {"$env": "SESSION_SECRET"},
          "sessionIdleTimeout": "5m", "cleanupInterval": "10m"},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"}
}`,
			wantWarnings: []string{"cleanupInterval (10m0s) is longer than sessionIdleTimeout (5m0s)"},
		},
		{
			name: "backend_section",
			content: `{
  "version": "v0.0.1-DEV_EDITION",
  "app": {"baseURL": "https://app.test", "addr": ":8080", "profileUrl": "http://localhost/me",
          "sessionSecret": {"$env": "SESSION_SECRET"}},
  "provider": {"clientId": "abc", "authorizationUrl": "http://x/a", "tokenUrl": "http://x/t"},
  "backend": {"issuer": "http://localhost:8081", "jwtSecret": {"$env": "JWT_SECRET"}, "clients": [{"id": "abc"}]}
}`,
			wantErrors:   []string{"at least one redirect URI is required", "user is required"},
			wantWarnings: []string{"no allowed origins configured"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateFile(writeConfig(t, tt.content))
			require.NoError(t, err)

			assertMessages(t, result.Errors, tt.wantErrors)
			assertMessages(t, result.Warnings, tt.wantWarnings)
			assert.Equal(t, len(tt.wantErrors) == 0, result.IsValid())
		})
	}
}

func assertMessages(t *testing.T, got []ValidationError, want []string) {
	t.Helper()
	if len(want) == 0 {
		assert.Empty(t, got)
		return
	}
	for _, w := range want {
		found := false
		for _, g := range got {
			if strings.Contains(g.Message, w) {
				found = true
				break
			}
		}
		assert.True(t, found, "expected a message containing %q in %+v", w, got)
	}
}
