package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgellow/pkce-front/internal/crypto"
	"github.com/dgellow/pkce-front/internal/log"
	"github.com/redis/go-redis/v9"
)

// Ensure RedisStorage implements Store
var _ Store = (*RedisStorage)(nil)

const redisKeyPrefix = "pkce_front"

// redisClient is the subset of *redis.Client the store uses
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisOptions configures the Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// TTL is applied to every key on write. Zero means no expiry.
	TTL time.Duration

	// ConnectTimeout bounds the startup connectivity retries.
	ConnectTimeout time.Duration
}

// RedisStorage stores each scope's values as separate keys
// (pkce_front:<scope>:<key>), encrypted, with a per-key TTL.
type RedisStorage struct {
	client    redisClient
	encryptor crypto.Encryptor
	ttl       time.Duration
}

// NewRedisStorage connects to Redis and verifies the connection, retrying
// with exponential backoff while the server comes up.
func NewRedisStorage(ctx context.Context, opts RedisOptions, encryptor crypto.Encryptor) (*RedisStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}
	if err := pingWithRetry(ctx, rdb, connectTimeout); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Redis", map[string]any{
		"addr": opts.Addr,
		"db":   opts.DB,
	})

	return newRedisStorage(rdb, encryptor, opts.TTL), nil
}

func newRedisStorage(client redisClient, encryptor crypto.Encryptor, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client:    client,
		encryptor: encryptor,
		ttl:       ttl,
	}
}

func pingWithRetry(ctx context.Context, client redisClient, maxElapsed time.Duration) error {
	operation := func() (string, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return client.Ping(pingCtx).Result()
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(6),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.LogWarnWithFields("storage", "Redis not reachable, retrying", map[string]any{
				"error": err.Error(),
				"retry": next.String(),
			})
		}),
	)
	return err
}

func redisKey(scope, key string) string {
	return redisKeyPrefix + ":" + scope + ":" + key
}

// Get returns the decrypted value stored under key in scope
func (s *RedisStorage) Get(ctx context.Context, scope, key string) (string, error) {
	encrypted, err := s.client.Get(ctx, redisKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key from Redis: %w", err)
	}

	value, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return value, nil
}

// Set encrypts value and stores it with the configured TTL
func (s *RedisStorage) Set(ctx context.Context, scope, key, value string) error {
	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(scope, key), encrypted, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key in Redis: %w", err)
	}
	return nil
}

// Delete removes key from scope
func (s *RedisStorage) Delete(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete key from Redis: %w", err)
	}
	return nil
}

// CleanupExpired is a no-op: Redis expires keys itself
func (s *RedisStorage) CleanupExpired(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

// Close closes the Redis connection pool
func (s *RedisStorage) Close() error {
	return s.client.Close()
}
