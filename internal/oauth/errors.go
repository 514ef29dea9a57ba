package oauth

import (
	"fmt"
	"net/http"
	"net/url"

	jsonwriter "github.com/dgellow/pkce-front/internal/json"
)

type ErrorCode string

const (
	ErrInvalidRequest          ErrorCode = "invalid_request"
	ErrUnauthorizedClient      ErrorCode = "unauthorized_client"
	ErrAccessDenied            ErrorCode = "access_denied"
	ErrUnsupportedResponseType ErrorCode = "unsupported_response_type"
	ErrInvalidScope            ErrorCode = "invalid_scope"
	ErrServerError             ErrorCode = "server_error"
	ErrInvalidGrant            ErrorCode = "invalid_grant"
	ErrInvalidClient           ErrorCode = "invalid_client"
	ErrUnsupportedGrantType    ErrorCode = "unsupported_grant_type"
)

type OAuthError struct {
	Code        ErrorCode `json:"error"`
	Description string    `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return string(e.Code)
}

func NewOAuthError(code ErrorCode, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}

func WriteAuthorizeError(w http.ResponseWriter, r *http.Request, redirectURI string, state string, oauthErr *OAuthError) {
	if redirectURI == "" {
		WriteTokenError(w, http.StatusBadRequest, oauthErr)
		return
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		WriteTokenError(w, http.StatusBadRequest, oauthErr)
		return
	}

	q := u.Query()
	q.Set("error", string(oauthErr.Code))
	if oauthErr.Description != "" {
		q.Set("error_description", oauthErr.Description)
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}

func WriteTokenError(w http.ResponseWriter, status int, oauthErr *OAuthError) {
	jsonwriter.WriteOAuthError(w, status, string(oauthErr.Code), oauthErr.Description)
}

// TokenErrorStatus maps an OAuth error code to the token endpoint status (RFC 6749 5.2)
func TokenErrorStatus(code ErrorCode) int {
	switch code {
	case ErrInvalidClient:
		return http.StatusUnauthorized
	case ErrServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
