// Package pkce generates the per-attempt secrets of an OAuth 2.0 authorization
// code flow with Proof Key for Code Exchange (RFC 7636, S256 method).
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// MethodS256 is the only challenge method produced or accepted
const MethodS256 = "S256"

const (
	verifierBytes = 32
	stateBytes    = 32
)

// ErrSecureRandomUnavailable means the platform CSPRNG could not be read.
// This is a fatal configuration problem; no login attempt can proceed.
var ErrSecureRandomUnavailable = errors.New("secure random source unavailable")

// randRead is swapped in tests to simulate a broken entropy source
var randRead = rand.Read

// Secrets are the single-use values for one login attempt
type Secrets struct {
	Verifier  string
	Challenge string
	Method    string
	State     string
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := randRead(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSecureRandomUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateVerifier returns 32 fresh random bytes as unpadded base64url (43 chars)
func GenerateVerifier() (string, error) {
	return randomString(verifierBytes)
}

// DeriveChallenge returns base64url(SHA-256(verifier)) without padding
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateCSRFState returns an opaque 256-bit state value for the authorization request
func GenerateCSRFState() (string, error) {
	return randomString(stateBytes)
}

// NewSecrets generates the verifier, its challenge and an unrelated state value
func NewSecrets() (*Secrets, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	state, err := GenerateCSRFState()
	if err != nil {
		return nil, err
	}
	return &Secrets{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
		Method:    MethodS256,
		State:     state,
	}, nil
}

// Verify reports whether verifier hashes to challenge, in constant time
func Verify(verifier, challenge string) bool {
	computed := DeriveChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
