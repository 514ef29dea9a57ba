package oauth

import (
	"fmt"
	"slices"

	"github.com/dgellow/pkce-front/internal/config"
	"golang.org/x/crypto/bcrypt"
)

type Client interface {
	GetID() string
	GetSecretHash() []byte
	GetRedirectURIs() []string
	IsPublic() bool
}

// RegisteredClient is a client declared in the backend config
type RegisteredClient struct {
	ID           string
	SecretHash   []byte
	RedirectURIs []string
}

func (c *RegisteredClient) GetID() string             { return c.ID }
func (c *RegisteredClient) GetSecretHash() []byte     { return c.SecretHash }
func (c *RegisteredClient) GetRedirectURIs() []string { return c.RedirectURIs }
func (c *RegisteredClient) IsPublic() bool            { return len(c.SecretHash) == 0 }

// ClientRegistry looks up registered clients by ID
type ClientRegistry map[string]*RegisteredClient

// NewClientRegistry builds the registry from config registrations
func NewClientRegistry(registrations []config.ClientRegistration) ClientRegistry {
	registry := make(ClientRegistry, len(registrations))
	for _, reg := range registrations {
		registry[reg.ID] = &RegisteredClient{
			ID:           reg.ID,
			SecretHash:   []byte(reg.SecretHash),
			RedirectURIs: slices.Clone(reg.RedirectURIs),
		}
	}
	return registry
}

// Lookup returns the client registered under id
func (r ClientRegistry) Lookup(id string) (Client, bool) {
	c, ok := r[id]
	if !ok {
		return nil, false
	}
	return c, true
}

func ValidateRedirectURI(redirectURI string, client Client) error {
	if !slices.Contains(client.GetRedirectURIs(), redirectURI) {
		return fmt.Errorf("redirect_uri not registered for this client")
	}
	return nil
}

func ValidateClientSecret(providedSecret string, client Client) error {
	if client.IsPublic() {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(client.GetSecretHash(), []byte(providedSecret)); err != nil {
		return fmt.Errorf("invalid client secret")
	}
	return nil
}
