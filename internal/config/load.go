package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dgellow/pkce-front/internal/emailutil"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/dgellow/pkce-front/internal/urlutil"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionIdleTimeout  = 30 * time.Minute
	defaultCleanupInterval     = 5 * time.Minute
	defaultLoginAttemptTTL     = 10 * time.Minute
	defaultStorageTokenTTL     = 24 * time.Hour
	defaultBackendTokenTTL     = time.Hour
	defaultTokenRateLimit      = 60
	defaultLandingPath         = "/dashboard"
	defaultCallbackPath        = "/auth/callback"
	defaultFirestoreCollection = "pkce_front_tokens"
)

// DefaultScopes are requested when the provider config names none
var DefaultScopes = []string{"openid", "profile", "email"}

// Load loads the app config with immediate env var resolution
func Load(path string) (Config, error) {
	data, rawConfig, err := readVersioned(path)
	if err != nil {
		return Config{}, err
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadBackend loads only the backend section, so the stub backend can start
// without the app's secrets in its environment.
func LoadBackend(path string) (BackendConfig, error) {
	data, rawConfig, err := readVersioned(path)
	if err != nil {
		return BackendConfig{}, err
	}

	backend, ok := rawConfig["backend"].(map[string]any)
	if !ok {
		return BackendConfig{}, fmt.Errorf("backend section is required")
	}
	if err := requireEnvRefs(backend, "backend", "jwtSecret"); err != nil {
		return BackendConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	var wrapper struct {
		Backend BackendConfig `json:"backend"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return BackendConfig{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg := wrapper.Backend
	applyBackendDefaults(&cfg)
	if err := ValidateBackendConfig(&cfg); err != nil {
		return BackendConfig{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func readVersioned(path string) ([]byte, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, nil, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return nil, nil, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v0.0.1-DEV_EDITION") {
		return nil, nil, fmt.Errorf("unsupported config version: %s", version)
	}
	return data, rawConfig, nil
}

// validateRawConfig checks that secrets are env references before resolution
func validateRawConfig(rawConfig map[string]any) error {
	app, ok := rawConfig["app"].(map[string]any)
	if !ok {
		return fmt.Errorf("app section is required")
	}
	if err := requireEnvRefs(app, "app", "sessionSecret"); err != nil {
		return err
	}
	if storage, ok := app["storage"].(map[string]any); ok {
		if err := requireEnvRefs(storage, "app.storage", "encryptionKey", "redisPassword"); err != nil {
			return err
		}
	}
	if provider, ok := rawConfig["provider"].(map[string]any); ok {
		if err := requireEnvRefs(provider, "provider", "clientSecret"); err != nil {
			return err
		}
	}
	return nil
}

// requireEnvRefs rejects plain-text values for the named secret fields.
// Absent fields are left to ValidateConfig.
func requireEnvRefs(section map[string]any, path string, names ...string) error {
	for _, name := range names {
		value, exists := section[name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", path, name)
		}
		refMap, isMap := value.(map[string]any)
		if !isMap {
			return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", path, name)
		}
		if _, hasEnv := refMap["$env"]; !hasEnv {
			return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", path, name)
		}
	}
	return nil
}

// ApplyDefaults fills unset optional values and computes the redirect URI
func ApplyDefaults(config *Config) {
	app := &config.App
	if app.Name == "" {
		app.Name = "pkce-front"
	}
	if app.SessionIdleTimeout == 0 {
		app.SessionIdleTimeout = defaultSessionIdleTimeout
	}
	if app.CleanupInterval == 0 {
		app.CleanupInterval = defaultCleanupInterval
	}
	if app.LoginAttemptTTL == 0 {
		app.LoginAttemptTTL = defaultLoginAttemptTTL
	}
	if app.LandingPath == "" {
		app.LandingPath = defaultLandingPath
	}
	if app.Storage.Kind == "" {
		app.Storage.Kind = StorageKindMemory
	}
	if app.Storage.TokenTTL == 0 {
		app.Storage.TokenTTL = defaultStorageTokenTTL
	}
	if app.Storage.Kind == StorageKindFirestore {
		if app.Storage.FirestoreDatabase == "" {
			app.Storage.FirestoreDatabase = "(default)"
		}
		if app.Storage.FirestoreCollection == "" {
			app.Storage.FirestoreCollection = defaultFirestoreCollection
		}
	}

	provider := &config.Provider
	if provider.Kind == "" {
		provider.Kind = ProviderKindJSON
	}
	if provider.CallbackPath == "" {
		provider.CallbackPath = defaultCallbackPath
	}
	if len(provider.Scopes) == 0 && provider.Kind != ProviderKindGitHub {
		provider.Scopes = DefaultScopes
	}
	provider.RedirectURI = strings.TrimSuffix(app.BaseURL, "/") + provider.CallbackPath

	if config.Backend != nil {
		applyBackendDefaults(config.Backend)
	}
}

func applyBackendDefaults(b *BackendConfig) {
	if b.Addr == "" {
		b.Addr = ":8081"
	}
	if b.TokenTTL == 0 {
		b.TokenTTL = defaultBackendTokenTTL
	}
	if b.TokenRateLimit == 0 {
		b.TokenRateLimit = defaultTokenRateLimit
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if err := validateAppConfig(&config.App); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := validateProviderConfig(&config.Provider); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if config.Backend != nil {
		if err := ValidateBackendConfig(config.Backend); err != nil {
			return fmt.Errorf("backend: %w", err)
		}
	}
	return nil
}

func validateAppConfig(app *AppConfig) error {
	if app.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	if err := validateHTTPURL(app.BaseURL); err != nil {
		return fmt.Errorf("baseURL: %w", err)
	}
	if app.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if len(app.SessionSecret) < 32 {
		return fmt.Errorf("sessionSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(app.SessionSecret))
	}
	if app.ProfileURL == "" {
		return fmt.Errorf("profileUrl is required")
	}
	if err := validateHTTPURL(app.ProfileURL); err != nil {
		return fmt.Errorf("profileUrl: %w", err)
	}
	if !urlutil.IsLocalPath(app.LandingPath) {
		return fmt.Errorf("landingPath must be a local path, got %q", app.LandingPath)
	}
	if app.SessionIdleTimeout < 0 {
		return fmt.Errorf("sessionIdleTimeout cannot be negative")
	}
	if app.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}
	if app.LoginAttemptTTL < 0 {
		return fmt.Errorf("loginAttemptTtl cannot be negative")
	}
	if app.SessionIdleTimeout > 0 && app.CleanupInterval > app.SessionIdleTimeout {
		log.LogWarn("Session cleanup interval is greater than session idle timeout")
	}
	return validateStorageConfig(&app.Storage)
}

func validateStorageConfig(s *StorageConfig) error {
	switch s.Kind {
	case StorageKindMemory:
		return nil
	case StorageKindRedis:
		if s.RedisAddr == "" {
			return fmt.Errorf("storage.redisAddr is required when using redis storage")
		}
		if s.RedisDB < 0 {
			return fmt.Errorf("storage.redisDb cannot be negative")
		}
	case StorageKindFirestore:
		if s.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s (memory, redis, firestore)", s.Kind)
	}
	if len(s.EncryptionKey) != 32 {
		return fmt.Errorf("storage.encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(s.EncryptionKey))
	}
	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if !strings.HasPrefix(p.CallbackPath, "/") {
		return fmt.Errorf("callbackPath must start with /")
	}

	switch p.Kind {
	case ProviderKindJSON:
		if p.AuthorizationURL == "" || p.TokenURL == "" {
			return fmt.Errorf("authorizationUrl and tokenUrl are required for %s provider", p.Kind)
		}
	case ProviderKindOIDC:
		if p.DiscoveryURL == "" && (p.AuthorizationURL == "" || p.TokenURL == "") {
			return fmt.Errorf("either discoveryUrl or both authorizationUrl and tokenUrl must be provided")
		}
	case ProviderKindAzure:
		if p.TenantID == "" {
			return fmt.Errorf("tenantId is required for Azure AD")
		}
	case ProviderKindGoogle, ProviderKindGitHub:
		if p.ClientSecret == "" {
			return fmt.Errorf("clientSecret is required for %s provider", p.Kind)
		}
	default:
		return fmt.Errorf("unknown provider kind: %s", p.Kind)
	}

	for _, u := range []string{p.AuthorizationURL, p.TokenURL, p.DiscoveryURL} {
		if u == "" {
			continue
		}
		if err := validateHTTPURL(u); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBackendConfig validates the resolved backend section
func ValidateBackendConfig(b *BackendConfig) error {
	if b.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if b.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	if len(b.JWTSecret) < 32 {
		return fmt.Errorf("jwtSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(b.JWTSecret))
	}
	if b.TokenTTL < 0 {
		return fmt.Errorf("tokenTtl cannot be negative")
	}
	if b.TokenRateLimit < 0 {
		return fmt.Errorf("tokenRateLimit cannot be negative")
	}
	if len(b.Clients) == 0 {
		return fmt.Errorf("at least one client is required")
	}
	seen := make(map[string]bool, len(b.Clients))
	for i, c := range b.Clients {
		if c.ID == "" {
			return fmt.Errorf("clients[%d].id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate client id: %s", c.ID)
		}
		seen[c.ID] = true
		if len(c.RedirectURIs) == 0 {
			return fmt.Errorf("client %s needs at least one redirect URI", c.ID)
		}
		if c.SecretHash != "" {
			if _, err := bcrypt.Cost([]byte(c.SecretHash)); err != nil {
				return fmt.Errorf("client %s: secretHash is not a bcrypt hash: %w", c.ID, err)
			}
		}
		for _, uri := range c.RedirectURIs {
			if err := validateHTTPURL(uri); err != nil {
				return fmt.Errorf("client %s: %w", c.ID, err)
			}
		}
	}
	if b.User.ID == "" {
		return fmt.Errorf("user.id is required")
	}
	if b.User.Email != "" && !emailutil.Plausible(b.User.Email) {
		return fmt.Errorf("user.email is not a valid address: %q", b.User.Email)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
