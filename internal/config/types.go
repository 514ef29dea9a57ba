package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the durable token store backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindRedis     StorageKind = "redis"
	StorageKindFirestore StorageKind = "firestore"
)

// ProviderKind selects how the authorization server is spoken to
type ProviderKind string

const (
	// ProviderKindJSON posts a JSON body to the token endpoint.
	ProviderKindJSON   ProviderKind = "json"
	ProviderKindOIDC   ProviderKind = "oidc"
	ProviderKindGoogle ProviderKind = "google"
	ProviderKindGitHub ProviderKind = "github"
	ProviderKindAzure  ProviderKind = "azure"
)

// StorageConfig configures where persisted tokens live
type StorageConfig struct {
	Kind                StorageKind   `json:"kind"`
	RedisAddr           string        `json:"redisAddr,omitempty"`
	RedisPassword       Secret        `json:"redisPassword,omitempty"`
	RedisDB             int           `json:"redisDb,omitempty"`
	TokenTTL            time.Duration `json:"tokenTtl"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	EncryptionKey       Secret        `json:"encryptionKey,omitempty"`
}

// AppConfig represents the pkce-front web application with resolved values
type AppConfig struct {
	BaseURL            string        `json:"baseURL"`
	Addr               string        `json:"addr"`
	Name               string        `json:"name"`
	SessionSecret      Secret        `json:"sessionSecret"`
	SessionIdleTimeout time.Duration `json:"sessionIdleTimeout"`
	CleanupInterval    time.Duration `json:"cleanupInterval"`
	LoginAttemptTTL    time.Duration `json:"loginAttemptTtl"`
	ProfileURL         string        `json:"profileUrl"`
	LandingPath        string        `json:"landingPath"`
	Storage            StorageConfig `json:"storage"`
}

// ProviderConfig represents the authorization server the app logs in against
type ProviderConfig struct {
	Kind             ProviderKind `json:"kind"`
	ClientID         string       `json:"clientId"`
	ClientSecret     Secret       `json:"clientSecret,omitempty"`
	AuthorizationURL string       `json:"authorizationUrl,omitempty"`
	TokenURL         string       `json:"tokenUrl,omitempty"`
	DiscoveryURL     string       `json:"discoveryUrl,omitempty"`
	TenantID         string       `json:"tenantId,omitempty"`
	Scopes           []string     `json:"scopes,omitempty"`
	CallbackPath     string       `json:"callbackPath"`

	// Computed from app.baseURL and callbackPath
	RedirectURI string `json:"-"`
}

// ClientRegistration is a client the dev authorization server accepts.
// Clients without a secret hash are public and must use PKCE.
type ClientRegistration struct {
	ID           string   `json:"id"`
	SecretHash   string   `json:"secretHash,omitempty"` // bcrypt
	RedirectURIs []string `json:"redirectUris"`
}

// DemoUser is the profile the stub backend serves from /me
type DemoUser struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Email string         `json:"email"`
	Extra map[string]any `json:"extra,omitempty"`
}

// BackendConfig represents the stub backend and its dev authorization server
type BackendConfig struct {
	Addr           string               `json:"addr"`
	Issuer         string               `json:"issuer"`
	JWTSecret      Secret               `json:"jwtSecret"`
	TokenTTL       time.Duration        `json:"tokenTtl"`
	AllowedOrigins []string             `json:"allowedOrigins"`
	TokenRateLimit int                  `json:"tokenRateLimit"` // requests per minute per client IP
	Clients        []ClientRegistration `json:"clients"`
	User           DemoUser             `json:"user"`
}

// Config represents the config structure with resolved values
type Config struct {
	App      AppConfig      `json:"app"`
	Provider ProviderConfig `json:"provider"`
	Backend  *BackendConfig `json:"backend,omitempty"`
}

// ParseConfigValue parses a JSON value that could be a string or an
// {"$env": "NAME"} reference, resolving the reference immediately.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseOptional resolves raw into dst when the field was present.
func parseOptional(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = value
	return nil
}

func parseDuration(s, field string, dst *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}
