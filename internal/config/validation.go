package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"v0.0.1-DEV_EDITION\"")
	} else if !strings.HasPrefix(version, "v0.0.1-DEV_EDITION") {
		result.addError("version", "unsupported version '%s' - use 'v0.0.1-DEV_EDITION' or 'v0.0.1-DEV_EDITION-<variant>'", version)
	}

	validateAppStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	if backend, ok := rawConfig["backend"].(map[string]any); ok {
		validateBackendStructure(backend, result)
	}

	return result, nil
}

func validateAppStructure(rawConfig map[string]any, result *ValidationResult) {
	app, ok := rawConfig["app"].(map[string]any)
	if !ok {
		result.addError("app", "app field is required and must be an object")
		return
	}

	if _, ok := app["baseURL"]; !ok {
		result.addError("app.baseURL", "baseURL is required. Example: \"https://app.example.com\"")
	}
	if _, ok := app["addr"]; !ok {
		result.addError("app.addr", "addr is required. Example: \":8080\" or \"0.0.0.0:8080\"")
	}
	if _, ok := app["profileUrl"]; !ok {
		result.addError("app.profileUrl", "profileUrl is required. Example: \"https://api.example.com/me\"")
	}
	if secret, ok := app["sessionSecret"]; !ok {
		result.addError("app.sessionSecret", "sessionSecret is required. Hint: Must be at least 32 bytes long for HMAC-SHA256")
	} else if err := validateEnvVarReference(secret, "sessionSecret", "app.sessionSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	if landing, ok := app["landingPath"].(string); ok && !strings.HasPrefix(landing, "/") {
		result.addError("app.landingPath", "landingPath must be a local path such as \"/dashboard\"")
	}

	validateDurations(app, "app", result, "sessionIdleTimeout", "cleanupInterval", "loginAttemptTtl")
	idle, errIdle := time.ParseDuration(stringField(app, "sessionIdleTimeout"))
	cleanup, errCleanup := time.ParseDuration(stringField(app, "cleanupInterval"))
	if errIdle == nil && errCleanup == nil && cleanup > idle {
		result.addWarning("app", "cleanupInterval (%s) is longer than sessionIdleTimeout (%s). Idle sessions will remain in memory until cleanup runs.", cleanup, idle)
	}

	if storage, ok := app["storage"].(map[string]any); ok {
		validateStorageStructure(storage, result)
	}
}

func validateStorageStructure(storage map[string]any, result *ValidationResult) {
	kind, _ := storage["kind"].(string)
	switch kind {
	case "", "memory":
		return
	case "redis":
		if _, ok := storage["redisAddr"]; !ok {
			result.addError("app.storage.redisAddr", "redisAddr is required for redis storage. Example: \"localhost:6379\"")
		}
		if password, ok := storage["redisPassword"]; ok {
			if err := validateEnvVarReference(password, "redisPassword", "app.storage.redisPassword"); err != nil {
				result.Errors = append(result.Errors, *err)
			}
		}
	case "firestore":
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("app.storage.gcpProject", "gcpProject is required for firestore storage")
		}
	default:
		result.addError("app.storage.kind", "unknown storage kind '%s'. Options: memory, redis, firestore", kind)
		return
	}

	if key, ok := storage["encryptionKey"]; !ok {
		result.addError("app.storage.encryptionKey", "encryptionKey is required for %s storage. Hint: Must be exactly 32 bytes for XChaCha20-Poly1305", kind)
	} else if err := validateEnvVarReference(key, "encryptionKey", "app.storage.encryptionKey"); err != nil {
		result.Errors = append(result.Errors, *err)
	}
	validateDurations(storage, "app.storage", result, "tokenTtl")
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		result.addError("provider", "provider field is required and must be an object")
		return
	}

	if _, ok := provider["clientId"]; !ok {
		result.addError("provider.clientId", "clientId is required")
	}
	if secret, ok := provider["clientSecret"]; ok {
		if err := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	}

	kind, _ := provider["kind"].(string)
	switch kind {
	case "", "json":
		for _, field := range []string{"authorizationUrl", "tokenUrl"} {
			if _, ok := provider[field]; !ok {
				result.addError("provider."+field, "%s is required for the json provider", field)
			}
		}
	case "oidc":
		_, hasDiscovery := provider["discoveryUrl"]
		_, hasAuth := provider["authorizationUrl"]
		_, hasToken := provider["tokenUrl"]
		if !hasDiscovery && (!hasAuth || !hasToken) {
			result.addError("provider", "oidc provider requires discoveryUrl or both authorizationUrl and tokenUrl")
		}
	case "azure":
		if _, ok := provider["tenantId"]; !ok {
			result.addError("provider.tenantId", "tenantId is required for Azure AD")
		}
	case "google", "github":
		if _, ok := provider["clientSecret"]; !ok {
			result.addError("provider.clientSecret", "clientSecret is required for %s", kind)
		}
	default:
		result.addError("provider.kind", "unknown provider kind '%s'. Options: json, oidc, google, github, azure", kind)
	}

	if callback, ok := provider["callbackPath"].(string); ok && !strings.HasPrefix(callback, "/") {
		result.addError("provider.callbackPath", "callbackPath must start with /")
	}
}

func validateBackendStructure(backend map[string]any, result *ValidationResult) {
	if _, ok := backend["issuer"]; !ok {
		result.addError("backend.issuer", "issuer is required")
	}
	if secret, ok := backend["jwtSecret"]; !ok {
		result.addError("backend.jwtSecret", "jwtSecret is required. Hint: Must be at least 32 bytes long for HMAC-SHA256")
	} else if err := validateEnvVarReference(secret, "jwtSecret", "backend.jwtSecret"); err != nil {
		result.Errors = append(result.Errors, *err)
	}

	clients, ok := backend["clients"].([]any)
	if !ok || len(clients) == 0 {
		result.addError("backend.clients", "at least one client registration is required")
	}
	for i, c := range clients {
		client, ok := c.(map[string]any)
		if !ok {
			result.addError(fmt.Sprintf("backend.clients[%d]", i), "client must be an object")
			continue
		}
		if _, ok := client["id"].(string); !ok {
			result.addError(fmt.Sprintf("backend.clients[%d].id", i), "client id is required")
		}
		if uris, ok := client["redirectUris"].([]any); !ok || len(uris) == 0 {
			result.addError(fmt.Sprintf("backend.clients[%d].redirectUris", i), "at least one redirect URI is required")
		}
	}

	user, ok := backend["user"].(map[string]any)
	if !ok {
		result.addError("backend.user", "user is required")
	} else if _, ok := user["id"]; !ok {
		result.addError("backend.user.id", "user id is required")
	}

	if origins, ok := backend["allowedOrigins"].([]any); !ok || len(origins) == 0 {
		result.addWarning("backend.allowedOrigins", "no allowed origins configured - browsers will not be able to call the backend cross-origin")
	}
	validateDurations(backend, "backend", result, "tokenTtl")
}

func validateDurations(section map[string]any, path string, result *ValidationResult, names ...string) {
	for _, name := range names {
		value, ok := section[name]
		if !ok {
			continue
		}
		s, ok := value.(string)
		if !ok {
			result.addError(path+"."+name, "%s must be a duration string such as \"10m\"", name)
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			result.addError(path+"."+name, "invalid duration '%s': %v", s, err)
		}
	}
}

func stringField(section map[string]any, name string) string {
	s, _ := section[name].(string)
	return s
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
