package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTokenExpired is returned by Verify when a token's TTL has elapsed
var ErrTokenExpired = errors.New("token expired")

// TokenSigner produces HMAC-signed JSON tokens with an optional expiry.
// The dev authorization server uses it for access and refresh tokens; the app uses
// it for the short-lived post-login return location cookie.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenSigner creates a new token signer. A zero ttl means tokens never expire.
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
	}
}

type signedEnvelope struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitzero"`
}

// WithClock returns a copy of the signer that reads time from now
func (ts TokenSigner) WithClock(now func() time.Time) TokenSigner {
	ts.now = now
	return ts
}

// TTL returns the lifetime given to new tokens
func (ts *TokenSigner) TTL() time.Duration {
	return ts.ttl
}

// Sign marshals v, wraps it with the expiry and returns "<payload>.<signature>"
func (ts *TokenSigner) Sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	env := signedEnvelope{Data: payload}
	if ts.ttl > 0 {
		env.ExpiresAt = ts.now().Add(ts.ttl).UTC()
	}

	envJSON, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token data: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(envJSON)
	return encoded + "." + SignData(encoded, ts.signingKey), nil
}

// Verify checks the signature and expiry, then unmarshals the payload into v
func (ts *TokenSigner) Verify(token string, v any) error {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return fmt.Errorf("invalid token format")
	}

	if !ValidateSignedData(encoded, signature, ts.signingKey) {
		return fmt.Errorf("invalid signature")
	}

	envJSON, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode token data: %w", err)
	}

	var env signedEnvelope
	if err := json.Unmarshal(envJSON, &env); err != nil {
		return fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	if !env.ExpiresAt.IsZero() && ts.now().After(env.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	return nil
}
