package oauth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/pkce-front/internal/crypto"
	"github.com/dgellow/pkce-front/internal/pkce"
)

const (
	defaultCodeLifespan    = 10 * time.Minute
	defaultAccessTokenTTL  = time.Hour
	defaultRefreshTokenTTL = 30 * 24 * time.Hour

	minSecretLength = 32
)

// AuthorizationServer auto-approves authorization requests of registered
// clients and mints HMAC-signed bearer tokens. Refresh tokens are signed with
// a key derived from the access token key, so neither verifies as the other.
type AuthorizationServer struct {
	issuer       string
	access       crypto.TokenSigner
	refresh      crypto.TokenSigner
	codeLifespan time.Duration
	minState     int
	now          func() time.Time
}

type AuthorizationServerConfig struct {
	JWTSecret       []byte
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CodeLifespan    time.Duration
	// MinStateEntropy is the shortest accepted state parameter; 0 disables the check
	MinStateEntropy int
	// Now defaults to time.Now
	Now func() time.Time
}

func NewAuthorizationServer(cfg AuthorizationServerConfig) (*AuthorizationServer, error) {
	if len(cfg.JWTSecret) < minSecretLength {
		return nil, fmt.Errorf("JWT secret must be at least %d bytes, got %d", minSecretLength, len(cfg.JWTSecret))
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	refreshKey := []byte(crypto.SignData("refresh-token", cfg.JWTSecret))

	return &AuthorizationServer{
		issuer:       cfg.Issuer,
		access:       crypto.NewTokenSigner(cfg.JWTSecret, orDefault(cfg.AccessTokenTTL, defaultAccessTokenTTL)).WithClock(now),
		refresh:      crypto.NewTokenSigner(refreshKey, orDefault(cfg.RefreshTokenTTL, defaultRefreshTokenTTL)).WithClock(now),
		codeLifespan: orDefault(cfg.CodeLifespan, defaultCodeLifespan),
		minState:     cfg.MinStateEntropy,
		now:          now,
	}, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *AuthorizationServer) Issuer() string {
	return s.issuer
}

// ParseAuthorizeRequest checks an authorization request of client. The
// redirect URI must already be known to be registered: errors are reported
// to it.
func (s *AuthorizationServer) ParseAuthorizeRequest(q url.Values, client Client) (*AuthorizeParams, error) {
	if q.Get("response_type") != "code" {
		return nil, NewOAuthError(ErrUnsupportedResponseType, "only response_type=code is supported")
	}

	redirectURI := q.Get("redirect_uri")
	if err := ValidateRedirectURI(redirectURI, client); err != nil {
		return nil, NewOAuthError(ErrInvalidRequest, err.Error())
	}

	state := q.Get("state")
	if len(state) < s.minState {
		return nil, NewOAuthError(ErrInvalidRequest, fmt.Sprintf("state parameter must be at least %d characters", s.minState))
	}

	challenge := q.Get("code_challenge")
	switch {
	case challenge == "" && client.IsPublic():
		return nil, NewOAuthError(ErrInvalidRequest, "PKCE code_challenge is required for public clients")
	case challenge != "" && q.Get("code_challenge_method") != pkce.MethodS256:
		return nil, NewOAuthError(ErrInvalidRequest, "only code_challenge_method=S256 is supported")
	}

	return &AuthorizeParams{
		ClientID:      client.GetID(),
		RedirectURI:   redirectURI,
		State:         state,
		Scopes:        strings.Fields(q.Get("scope")),
		PKCEChallenge: challenge,
	}, nil
}

// IssueCode auto-approves params for subject and returns a one-time grant
func (s *AuthorizationServer) IssueCode(params *AuthorizeParams, subject string) (*Grant, error) {
	code, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := s.now()
	return &Grant{
		Code:          code,
		ClientID:      params.ClientID,
		RedirectURI:   params.RedirectURI,
		Subject:       subject,
		Scopes:        params.Scopes,
		PKCEChallenge: params.PKCEChallenge,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.codeLifespan),
	}, nil
}

type ExchangeCodeRequest struct {
	RedirectURI  string
	CodeVerifier string
	ClientSecret string
}

// ExchangeCode redeems a consumed grant for a token pair
func (s *AuthorizationServer) ExchangeCode(grant *Grant, req *ExchangeCodeRequest, client Client) (*TokenPair, error) {
	if err := authenticate(client, req.ClientSecret); err != nil {
		return nil, err
	}

	switch {
	case s.now().After(grant.ExpiresAt):
		return nil, NewOAuthError(ErrInvalidGrant, "authorization code has expired")
	case grant.ClientID != client.GetID():
		return nil, NewOAuthError(ErrInvalidGrant, "authorization code was issued to a different client")
	case grant.RedirectURI != req.RedirectURI:
		return nil, NewOAuthError(ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}

	if err := verifyPKCE(grant.PKCEChallenge, req.CodeVerifier); err != nil {
		return nil, err
	}
	return s.mint(grant.Subject, client.GetID(), grant.Scopes)
}

type RefreshRequest struct {
	ClientSecret string
}

// RefreshTokens trades a refresh token for a new token pair
func (s *AuthorizationServer) RefreshTokens(refreshToken string, client Client, req *RefreshRequest) (*TokenPair, error) {
	if err := authenticate(client, req.ClientSecret); err != nil {
		return nil, err
	}

	var claims RefreshTokenClaims
	if err := s.refresh.Verify(refreshToken, &claims); err != nil {
		return nil, NewOAuthError(ErrInvalidGrant, "invalid or expired refresh token")
	}
	if claims.ClientID != client.GetID() {
		return nil, NewOAuthError(ErrInvalidGrant, "refresh token was issued to a different client")
	}
	return s.mint(claims.Subject, claims.ClientID, claims.Scopes)
}

// VerifyAccessToken returns the claims of a valid, unexpired access token
func (s *AuthorizationServer) VerifyAccessToken(token string) (*AccessTokenClaims, error) {
	var claims AccessTokenClaims
	if err := s.access.Verify(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func authenticate(client Client, secret string) error {
	if err := ValidateClientSecret(secret, client); err != nil {
		return NewOAuthError(ErrInvalidClient, err.Error())
	}
	return nil
}

// verifyPKCE passes grants issued without a challenge, which only
// confidential clients can obtain
func verifyPKCE(challenge, verifier string) error {
	switch {
	case challenge == "":
		return nil
	case verifier == "":
		return NewOAuthError(ErrInvalidGrant, "code_verifier is required")
	case !pkce.Verify(verifier, challenge):
		return NewOAuthError(ErrInvalidGrant, "PKCE verification failed")
	}
	return nil
}

func (s *AuthorizationServer) mint(subject, clientID string, scopes []string) (*TokenPair, error) {
	accessID, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token ID: %w", err)
	}
	accessToken, err := s.access.Sign(AccessTokenClaims{
		TokenID:  accessID,
		ClientID: clientID,
		Subject:  subject,
		Scopes:   scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshID, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token ID: %w", err)
	}
	refreshToken, err := s.refresh.Sign(RefreshTokenClaims{
		TokenID:  refreshID,
		ClientID: clientID,
		Subject:  subject,
		Scopes:   scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.access.TTL().Seconds()),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	}, nil
}
