package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/pkce-front/internal/pkce"
	"golang.org/x/oauth2"
)

// DefaultHTTPClient is used for token and profile requests when none is injected
var DefaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// Provider abstracts the authorization server the app logs in against.
type Provider interface {
	// Type returns the provider type identifier (e.g., "json", "oidc", "google", "github").
	Type() string

	// AuthURL builds the authorization request URL for one login attempt.
	// The challenge is always sent with method S256.
	AuthURL(challenge, state string) string

	// ExchangeCode redeems an authorization code together with the PKCE verifier
	// that produced the challenge sent in AuthURL.
	ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error)
}

// ExchangeError is returned when the token endpoint answers with a non-2xx status
type ExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// oauth2Provider carries what every provider kind shares: an oauth2.Config
// and the HTTP client used against its endpoints.
type oauth2Provider struct {
	providerType string
	config       oauth2.Config
	httpClient   *http.Client
}

func newOAuth2Provider(providerType string, config oauth2.Config, httpClient *http.Client) oauth2Provider {
	if httpClient == nil {
		httpClient = DefaultHTTPClient
	}
	// Public clients have no secret to put in a Basic header
	if config.ClientSecret == "" {
		config.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	return oauth2Provider{
		providerType: providerType,
		config:       config,
		httpClient:   httpClient,
	}
}

// Type returns the provider type.
func (p *oauth2Provider) Type() string {
	return p.providerType
}

// AuthURL generates the authorization URL.
func (p *oauth2Provider) AuthURL(challenge, state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		oauth2.SetAuthURLParam("code_challenge", challenge),
	)
}

// ExchangeCode exchanges an authorization code using a form-encoded token request.
func (p *oauth2Provider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &ExchangeError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       truncate(string(retrieveErr.Body), 1024),
				Err:        err,
			}
		}
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	return token, nil
}

// RedirectURI returns the callback URL registered with the provider
func (p *oauth2Provider) RedirectURI() string {
	return p.config.RedirectURL
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
