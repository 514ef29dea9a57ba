package authsession

import (
	"errors"
	"fmt"

	"github.com/dgellow/pkce-front/internal/pkce"
)

// ErrorKind classifies a failed login attempt
type ErrorKind string

const (
	KindMissingAuthorizationCode ErrorKind = "MissingAuthorizationCode"
	KindCsrfStateMismatch        ErrorKind = "CsrfStateMismatch"
	KindTokenExchangeFailed      ErrorKind = "TokenExchangeFailed"
	KindProfileFetchFailed       ErrorKind = "ProfileFetchFailed"
	KindSecureRandomUnavailable  ErrorKind = "SecureRandomUnavailable"
)

var (
	ErrMissingAuthorizationCode = errors.New("authorization code not found")
	ErrCsrfStateMismatch        = errors.New("state parameter mismatch")
	ErrTokenExchangeFailed      = errors.New("token exchange failed")
	ErrProfileFetchFailed       = errors.New("profile fetch failed")
	ErrSecureRandomUnavailable  = pkce.ErrSecureRandomUnavailable

	// ErrLoginInProgress is returned by InitiateLogin while another attempt is still live
	ErrLoginInProgress = errors.New("login already in progress")
)

// User-facing messages, one per kind
const (
	msgMissingCode    = "Authorization code not found in the URL"
	msgStateMismatch  = "Invalid state parameter"
	msgExchangeFailed = "Failed to exchange code for token"
	msgProfileFailed  = "Failed to fetch user data"
	msgRandomUnusable = "Secure random number generation is unavailable"
)

var messages = map[ErrorKind]string{
	KindMissingAuthorizationCode: msgMissingCode,
	KindCsrfStateMismatch:        msgStateMismatch,
	KindTokenExchangeFailed:      msgExchangeFailed,
	KindProfileFetchFailed:       msgProfileFailed,
	KindSecureRandomUnavailable:  msgRandomUnusable,
}

// Message returns the user-facing message of the kind
func (k ErrorKind) Message() string {
	return messages[k]
}

var sentinels = map[ErrorKind]error{
	KindMissingAuthorizationCode: ErrMissingAuthorizationCode,
	KindCsrfStateMismatch:        ErrCsrfStateMismatch,
	KindTokenExchangeFailed:      ErrTokenExchangeFailed,
	KindProfileFetchFailed:       ErrProfileFetchFailed,
	KindSecureRandomUnavailable:  ErrSecureRandomUnavailable,
}

// Recoverable reports whether the user can retry by starting a new login
func (k ErrorKind) Recoverable() bool {
	return k != KindSecureRandomUnavailable
}

// AuthError is a classified login failure. Message is safe to show to the user.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func newAuthError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind
func (e *AuthError) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && target == sentinel
}
