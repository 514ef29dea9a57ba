package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFProtection(t *testing.T) {
	csrf := NewCSRFProtection([]byte("csrf-signing-key-of-sufficient-size"), time.Hour)

	token, err := csrf.Generate("session-a")
	require.NoError(t, err)

	assert.True(t, csrf.Validate("session-a", token))
	assert.False(t, csrf.Validate("session-b", token), "token is bound to its session")
	assert.False(t, csrf.Validate("session-a", token+"x"))
	assert.False(t, csrf.Validate("session-a", "garbage"))
	assert.False(t, csrf.Validate("session-a", "a:notanumber:b"))

	csrf.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.False(t, csrf.Validate("session-a", token), "expired token")
}
