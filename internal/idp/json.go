package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgellow/pkce-front/internal/ioutil"
	"golang.org/x/oauth2"
)

// JSONConfig configures a provider whose token endpoint takes a JSON body.
type JSONConfig struct {
	AuthorizationURL string
	TokenURL         string
	ClientID         string
	RedirectURI      string
	Scopes           []string
	HTTPClient       *http.Client
}

// JSONProvider talks to authorization servers that accept the token request
// as application/json instead of a form.
type JSONProvider struct {
	oauth2Provider
}

type jsonTokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
}

type jsonTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// NewJSONProvider creates a new JSON token endpoint provider.
func NewJSONProvider(cfg JSONConfig) (*JSONProvider, error) {
	if cfg.AuthorizationURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("authorizationUrl and tokenUrl are required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("clientId is required")
	}

	return &JSONProvider{
		oauth2Provider: newOAuth2Provider("json", oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizationURL,
				TokenURL: cfg.TokenURL,
			},
		}, cfg.HTTPClient),
	}, nil
}

// ExchangeCode posts {grant_type, client_id, code_verifier, code, redirect_uri}
// as JSON. A non-2xx answer is returned as *ExchangeError.
func (p *JSONProvider) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	body, err := json.Marshal(jsonTokenRequest{
		GrantType:    "authorization_code",
		ClientID:     p.config.ClientID,
		CodeVerifier: verifier,
		Code:         code,
		RedirectURI:  p.config.RedirectURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer ioutil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExchangeError{
			StatusCode: resp.StatusCode,
			Body:       ioutil.ReadLimited(resp.Body, 1024),
		}
	}

	var tr jsonTokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}
	if tr.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}
