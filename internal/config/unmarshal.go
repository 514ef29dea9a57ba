package config

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	type rawStorage struct {
		Kind                StorageKind     `json:"kind"`
		RedisAddr           json.RawMessage `json:"redisAddr,omitempty"`
		RedisPassword       json.RawMessage `json:"redisPassword,omitempty"`
		RedisDB             int             `json:"redisDb,omitempty"`
		TokenTTL            string          `json:"tokenTtl,omitempty"`
		GCPProject          json.RawMessage `json:"gcpProject,omitempty"`
		FirestoreDatabase   string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string          `json:"firestoreCollection,omitempty"`
		EncryptionKey       json.RawMessage `json:"encryptionKey,omitempty"`
	}

	var raw rawStorage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.RedisDB = raw.RedisDB
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	if err := parseDuration(raw.TokenTTL, "tokenTtl", &s.TokenTTL); err != nil {
		return err
	}
	if err := parseOptional(raw.RedisAddr, "redisAddr", &s.RedisAddr); err != nil {
		return err
	}
	if err := parseOptional(raw.GCPProject, "gcpProject", &s.GCPProject); err != nil {
		return err
	}

	var password, key string
	if err := parseOptional(raw.RedisPassword, "redisPassword", &password); err != nil {
		return err
	}
	if err := parseOptional(raw.EncryptionKey, "encryptionKey", &key); err != nil {
		return err
	}
	s.RedisPassword = Secret(password)
	s.EncryptionKey = Secret(key)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for AppConfig
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type rawApp struct {
		BaseURL            json.RawMessage `json:"baseURL"`
		Addr               json.RawMessage `json:"addr"`
		Name               string          `json:"name"`
		SessionSecret      json.RawMessage `json:"sessionSecret"`
		SessionIdleTimeout string          `json:"sessionIdleTimeout"`
		CleanupInterval    string          `json:"cleanupInterval"`
		LoginAttemptTTL    string          `json:"loginAttemptTtl"`
		ProfileURL         json.RawMessage `json:"profileUrl"`
		LandingPath        string          `json:"landingPath"`
		Storage            *StorageConfig  `json:"storage"`
	}

	var raw rawApp
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	a.Name = raw.Name
	a.LandingPath = raw.LandingPath
	if raw.Storage != nil {
		a.Storage = *raw.Storage
	}

	if err := parseOptional(raw.BaseURL, "baseURL", &a.BaseURL); err != nil {
		return err
	}
	if err := parseOptional(raw.Addr, "addr", &a.Addr); err != nil {
		return err
	}
	if err := parseOptional(raw.ProfileURL, "profileUrl", &a.ProfileURL); err != nil {
		return err
	}

	var secret string
	if err := parseOptional(raw.SessionSecret, "sessionSecret", &secret); err != nil {
		return err
	}
	a.SessionSecret = Secret(secret)

	if err := parseDuration(raw.SessionIdleTimeout, "sessionIdleTimeout", &a.SessionIdleTimeout); err != nil {
		return err
	}
	if err := parseDuration(raw.CleanupInterval, "cleanupInterval", &a.CleanupInterval); err != nil {
		return err
	}
	if err := parseDuration(raw.LoginAttemptTTL, "loginAttemptTtl", &a.LoginAttemptTTL); err != nil {
		return err
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		Kind             ProviderKind    `json:"kind"`
		ClientID         json.RawMessage `json:"clientId"`
		ClientSecret     json.RawMessage `json:"clientSecret,omitempty"`
		AuthorizationURL json.RawMessage `json:"authorizationUrl,omitempty"`
		TokenURL         json.RawMessage `json:"tokenUrl,omitempty"`
		DiscoveryURL     json.RawMessage `json:"discoveryUrl,omitempty"`
		TenantID         json.RawMessage `json:"tenantId,omitempty"`
		Scopes           []string        `json:"scopes,omitempty"`
		CallbackPath     string          `json:"callbackPath"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.Scopes = raw.Scopes
	p.CallbackPath = raw.CallbackPath

	fields := []struct {
		raw  json.RawMessage
		name string
		dst  *string
	}{
		{raw.ClientID, "clientId", &p.ClientID},
		{raw.AuthorizationURL, "authorizationUrl", &p.AuthorizationURL},
		{raw.TokenURL, "tokenUrl", &p.TokenURL},
		{raw.DiscoveryURL, "discoveryUrl", &p.DiscoveryURL},
		{raw.TenantID, "tenantId", &p.TenantID},
	}
	for _, f := range fields {
		if err := parseOptional(f.raw, f.name, f.dst); err != nil {
			return err
		}
	}

	var secret string
	if err := parseOptional(raw.ClientSecret, "clientSecret", &secret); err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for BackendConfig
func (b *BackendConfig) UnmarshalJSON(data []byte) error {
	type rawBackend struct {
		Addr           json.RawMessage      `json:"addr"`
		Issuer         json.RawMessage      `json:"issuer"`
		JWTSecret      json.RawMessage      `json:"jwtSecret"`
		TokenTTL       string               `json:"tokenTtl"`
		AllowedOrigins []string             `json:"allowedOrigins"`
		TokenRateLimit int                  `json:"tokenRateLimit"`
		Clients        []ClientRegistration `json:"clients"`
		User           DemoUser             `json:"user"`
	}

	var raw rawBackend
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	b.AllowedOrigins = raw.AllowedOrigins
	b.TokenRateLimit = raw.TokenRateLimit
	b.Clients = raw.Clients
	b.User = raw.User

	if err := parseOptional(raw.Addr, "addr", &b.Addr); err != nil {
		return err
	}
	if err := parseOptional(raw.Issuer, "issuer", &b.Issuer); err != nil {
		return err
	}

	var secret string
	if err := parseOptional(raw.JWTSecret, "jwtSecret", &secret); err != nil {
		return err
	}
	b.JWTSecret = Secret(secret)

	if err := parseDuration(raw.TokenTTL, "tokenTtl", &b.TokenTTL); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	return nil
}
