package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/config"
)

// DefaultSessionKeyPrefix namespaces session keys.
const DefaultSessionKeyPrefix = "wsi:session:"

// RedisSessionStore implements viewer.SessionStore using Redis, so that
// sessions survive restarts and are shared between instances.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(ctx context.Context, cfg config.RedisConfig, keyPrefix string) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisSessionStoreWithClient(client, keyPrefix), nil
}

// NewRedisSessionStoreWithClient creates a store with an existing client.
func NewRedisSessionStoreWithClient(client *redis.Client, keyPrefix string) *RedisSessionStore {
	if keyPrefix == "" {
		keyPrefix = DefaultSessionKeyPrefix
	}
	return &RedisSessionStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisSessionStore) key(id string) string {
	return s.keyPrefix + id
}

// Get loads a session.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (viewer.SessionState, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return viewer.SessionState{}, viewer.ErrSessionNotFound
	}
	if err != nil {
		return viewer.SessionState{}, fmt.Errorf("failed to load viewer session: %w", err)
	}

	var state viewer.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return viewer.SessionState{}, fmt.Errorf("failed to decode viewer session %s: %w", id, err)
	}
	return state, nil
}

// Save stores a session. A non-positive ttl keeps it until deleted.
func (s *RedisSessionStore) Save(ctx context.Context, state viewer.SessionState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode viewer session %s: %w", state.ID, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(state.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save viewer session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete viewer session: %w", err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

var _ viewer.SessionStore = (*RedisSessionStore)(nil)
