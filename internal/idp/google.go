package idp

import (
	"net/http"

	"github.com/dgellow/pkce-front/internal/pkce"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProvider implements the Provider interface for Google OAuth.
type GoogleProvider struct {
	oauth2Provider
}

// NewGoogleProvider creates a new Google OAuth provider.
func NewGoogleProvider(clientID, clientSecret, redirectURI string, httpClient *http.Client) *GoogleProvider {
	return &GoogleProvider{
		oauth2Provider: newOAuth2Provider("google", oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, httpClient),
	}
}

// AuthURL generates the authorization URL. Google is asked to show the
// account chooser so switching accounts after logout works.
func (p *GoogleProvider) AuthURL(challenge, state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}
