package idp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dgellow/pkce-front/internal/config"
)

// NewProvider creates a Provider based on the ProviderConfig.
// OIDC and Azure fetch their discovery document here, so ctx bounds startup.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, httpClient *http.Client) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderKindJSON, "":
		return NewJSONProvider(JSONConfig{
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			ClientID:         cfg.ClientID,
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
			HTTPClient:       httpClient,
		})

	case config.ProviderKindOIDC:
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "oidc",
			DiscoveryURL:     cfg.DiscoveryURL,
			AuthorizationURL: cfg.AuthorizationURL,
			TokenURL:         cfg.TokenURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
			HTTPClient:       httpClient,
		})

	case config.ProviderKindAzure:
		return NewAzureProvider(ctx,
			cfg.TenantID,
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Scopes,
			httpClient,
		)

	case config.ProviderKindGoogle:
		return NewGoogleProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			httpClient,
		), nil

	case config.ProviderKindGitHub:
		return NewGitHubProvider(
			cfg.ClientID,
			string(cfg.ClientSecret),
			cfg.RedirectURI,
			cfg.Scopes,
			httpClient,
		), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Kind)
	}
}
