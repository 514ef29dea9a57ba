package idp

import (
	"context"
	"fmt"
	"net/http"
)

// NewAzureProvider creates an Azure AD provider using OIDC discovery.
// Azure AD is OIDC-compliant, so the generic OIDC provider is used with the tenant's discovery URL.
func NewAzureProvider(ctx context.Context, tenantID, clientID, clientSecret, redirectURI string, scopes []string, httpClient *http.Client) (*OIDCProvider, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantId is required for Azure AD")
	}

	discoveryURL := fmt.Sprintf(
		"https://login.microsoftonline.com/%s/v2.0/.well-known/openid-configuration",
		tenantID,
	)

	return NewOIDCProvider(ctx, OIDCConfig{
		ProviderType: "azure",
		DiscoveryURL: discoveryURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       scopes,
		HTTPClient:   httpClient,
	})
}
