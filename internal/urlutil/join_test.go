package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		paths []string
		want  string
	}{
		{"origin only", "https://app.test", []string{"/auth/callback"}, "https://app.test/auth/callback"},
		{"base with trailing slash", "https://app.test/", []string{"auth", "callback"}, "https://app.test/auth/callback"},
		{"base with prefix", "https://app.test/front", []string{"/auth/callback"}, "https://app.test/front/auth/callback"},
		{"keeps trailing slash", "https://app.test", []string{"/me/"}, "https://app.test/me/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := JoinPath("://bad", "x")
	assert.Error(t, err)
}

func TestIsLocalPath(t *testing.T) {
	assert.True(t, IsLocalPath("/dashboard"))
	assert.True(t, IsLocalPath("/dashboard?tab=profile"))

	assert.False(t, IsLocalPath(""))
	assert.False(t, IsLocalPath("dashboard"))
	assert.False(t, IsLocalPath("//evil.example.com"))
	assert.False(t, IsLocalPath("/\\evil.example.com"))
	assert.False(t, IsLocalPath("https://evil.example.com/"))
	assert.False(t, IsLocalPath("/x\r\nSet-Cookie: a=b"))
}
