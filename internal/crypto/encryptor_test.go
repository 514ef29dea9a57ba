package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor(t *testing.T) {
	enc, err := NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	sealed, err := enc.Encrypt("tok1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "tok1")

	again, err := enc.Encrypt("tok1")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per encryption")

	plain, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "tok1", plain)
}

func TestEncryptor_Errors(t *testing.T) {
	_, err := NewEncryptor([]byte("short"))
	assert.ErrorContains(t, err, "key must be 32 bytes")

	enc, err := NewEncryptor([]byte("test-encryption-key-32-bytes-ok!"))
	require.NoError(t, err)

	_, err = enc.Decrypt("!!not-base64!!")
	assert.Error(t, err)

	_, err = enc.Decrypt("c2hvcnQ")
	assert.ErrorContains(t, err, "too short")

	other, err := NewEncryptor([]byte("another-encryption-key-32-bytes!"))
	require.NoError(t, err)
	sealed, err := other.Encrypt("tok1")
	require.NoError(t, err)
	_, err = enc.Decrypt(sealed)
	assert.ErrorContains(t, err, "failed to decrypt")
}
