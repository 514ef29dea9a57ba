package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/pkce-front/internal/authsession"
	"github.com/dgellow/pkce-front/internal/backend"
	"github.com/dgellow/pkce-front/internal/config"
	"github.com/dgellow/pkce-front/internal/crypto"
	"github.com/dgellow/pkce-front/internal/idp"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/dgellow/pkce-front/internal/server"
	"github.com/dgellow/pkce-front/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second

	backendCleanupInterval = time.Minute
)

// PKCEFront is the client application: the browser-facing pages, the
// per-browser auth sessions and the durable token store behind them
type PKCEFront struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	sessions   *authsession.Manager
	storage    storage.Store
	cleanups   []*storage.CleanupManager
}

// NewPKCEFront builds the client application with all its dependencies
func NewPKCEFront(ctx context.Context, cfg config.Config) (*PKCEFront, error) {
	log.LogInfoWithFields("pkcefront", "Building client application", map[string]any{
		"baseURL":  cfg.App.BaseURL,
		"provider": string(cfg.Provider.Kind),
		"storage":  string(cfg.App.Storage.Kind),
	})

	store, err := setupStorage(ctx, cfg.App.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	httpClient := idp.DefaultHTTPClient
	provider, err := idp.NewProvider(ctx, cfg.Provider, httpClient)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}
	profiles := idp.NewProfileClient(cfg.App.ProfileURL, httpClient)

	sessions := authsession.NewManager(provider, profiles, store,
		authsession.WithIdleTimeout(cfg.App.SessionIdleTimeout),
		authsession.WithSessionOptions(authsession.WithLoginAttemptTTL(cfg.App.LoginAttemptTTL)),
	)

	handler := buildHTTPHandler(cfg, sessions, provider.Type())

	cleanups := []*storage.CleanupManager{
		storage.NewCleanupManager("sessions", storage.SweepFunc(sessions.EvictIdle), cfg.App.CleanupInterval),
		storage.NewCleanupManager("tokens", storage.ExpiredScopes(store, cfg.App.Storage.TokenTTL), cfg.App.CleanupInterval),
	}

	return &PKCEFront{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.App.Addr),
		sessions:   sessions,
		storage:    store,
		cleanups:   cleanups,
	}, nil
}

// Handler returns the application's complete HTTP handler
func (p *PKCEFront) Handler() http.Handler {
	return p.handler
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully
func (p *PKCEFront) Run() error {
	log.LogInfoWithFields("pkcefront", "Starting client application", map[string]any{
		"addr": p.config.App.Addr,
	})
	err := runUntilSignal("pkcefront", p.httpServer, p.cleanups)
	if closeErr := p.storage.Close(); closeErr != nil {
		log.LogErrorWithFields("pkcefront", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}
	return err
}

// setupStorage creates the durable token store. Values are encrypted at rest
// in every store except memory.
func setupStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Kind {
	case config.StorageKindRedis:
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		log.LogInfoWithFields("storage", "Using Redis storage", map[string]any{
			"addr": cfg.RedisAddr,
			"db":   cfg.RedisDB,
		})
		return storage.NewRedisStorage(ctx, storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: string(cfg.RedisPassword),
			DB:       cfg.RedisDB,
			TTL:      cfg.TokenTTL,
		}, encryptor)
	case config.StorageKindFirestore:
		encryptor, err := crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.GCPProject,
			"database":   cfg.FirestoreDatabase,
			"collection": cfg.FirestoreCollection,
		})
		return storage.NewFirestoreStorage(ctx, cfg.GCPProject, cfg.FirestoreDatabase, cfg.FirestoreCollection, encryptor)
	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStorage(), nil
	}
}

// buildHTTPHandler wires the page routes behind the browser session
func buildHTTPHandler(cfg config.Config, sessions *authsession.Manager, providerType string) http.Handler {
	signingKey := []byte(cfg.App.SessionSecret)

	handlers := server.NewAppHandlers(
		cfg.App.Name,
		cfg.App.LandingPath,
		cfg.Provider.CallbackPath,
		signingKey,
		providerType,
	)

	app := server.ChainMiddleware(server.NewAppMux(handlers),
		server.NewBrowserSessionMiddleware(sessions, signingKey),
		server.NewSecurityHeadersMiddleware(),
		server.NewLoggerMiddleware("app"),
		// Recovery middleware should be last (outermost)
		server.NewRecoverMiddleware("app"),
	)

	// health checks must not mint browser sessions
	mux := http.NewServeMux()
	mux.Handle("GET /health", server.NewHealthHandler())
	mux.Handle("/", app)

	log.LogInfoWithFields("server", "Client application routes registered", map[string]any{
		"landingPath":  cfg.App.LandingPath,
		"callbackPath": cfg.Provider.CallbackPath,
	})
	return mux
}

// Backend is the stub API with its development authorization server
type Backend struct {
	config     config.BackendConfig
	server     *backend.Server
	httpServer *server.HTTPServer
	cleanups   []*storage.CleanupManager
}

// NewBackend builds the stub backend from its config section
func NewBackend(cfg config.BackendConfig) (*Backend, error) {
	log.LogInfoWithFields("backend", "Building backend", map[string]any{
		"issuer":  cfg.Issuer,
		"clients": len(cfg.Clients),
	})

	srv, err := backend.NewServer(cfg)
	if err != nil {
		return nil, err
	}

	return &Backend{
		config:     cfg,
		server:     srv,
		httpServer: server.NewHTTPServer(srv.Handler(), cfg.Addr),
		cleanups: []*storage.CleanupManager{
			storage.NewCleanupManager("authorization-codes", srv.Grants(), backendCleanupInterval),
			storage.NewCleanupManager("rate-limits", srv.Limiter(), backendCleanupInterval),
		},
	}, nil
}

// Handler returns the backend's HTTP handler
func (b *Backend) Handler() http.Handler {
	return b.server.Handler()
}

// Run serves until SIGINT or SIGTERM, then shuts down gracefully
func (b *Backend) Run() error {
	log.LogInfoWithFields("backend", "Starting backend", map[string]any{
		"addr": b.config.Addr,
	})
	return runUntilSignal("backend", b.httpServer, b.cleanups)
}

func runUntilSignal(component string, httpServer *server.HTTPServer, cleanups []*storage.CleanupManager) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Channel to signal errors that should trigger shutdown
	errChan := make(chan error, 1)

	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	for _, cm := range cleanups {
		cm.Start(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields(component, "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields(component, "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields(component, "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, cm := range cleanups {
		cm.Stop()
	}

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields(component, "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields(component, "Shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}
