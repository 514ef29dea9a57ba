package oauth

import (
	"github.com/dgellow/pkce-front/internal/urlutil"
)

// AuthorizationServerMetadata builds OAuth 2.0 Authorization Server Metadata per RFC 8414
// https://datatracker.ietf.org/doc/html/rfc8414
//
// The same document is served as OpenID discovery, so userinfo_endpoint points at the
// backend's profile route.
func AuthorizationServerMetadata(issuer string) (map[string]any, error) {
	authzEndpoint, err := urlutil.JoinPath(issuer, "authorize")
	if err != nil {
		return nil, err
	}

	tokenEndpoint, err := urlutil.JoinPath(issuer, "token")
	if err != nil {
		return nil, err
	}

	userInfoEndpoint, err := urlutil.JoinPath(issuer, "me")
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": authzEndpoint,
		"token_endpoint":         tokenEndpoint,
		"userinfo_endpoint":      userInfoEndpoint,
		"response_types_supported": []string{
			"code",
		},
		"grant_types_supported": []string{
			"authorization_code",
			"refresh_token",
		},
		"code_challenge_methods_supported": []string{
			"S256",
		},
		"token_endpoint_auth_methods_supported": []string{
			"none",
			"client_secret_post",
		},
		"scopes_supported": []string{
			"openid",
			"profile",
			"email",
			"offline_access",
		},
	}, nil
}

// AuthorizationServerMetadataURI returns the well-known URI for the authorization server metadata.
func AuthorizationServerMetadataURI(issuer string) (string, error) {
	return urlutil.JoinPath(issuer, ".well-known", "oauth-authorization-server")
}
