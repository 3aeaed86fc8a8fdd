package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/config"
)

// SessionStoreFactory creates session stores based on configuration
type SessionStoreFactory struct {
	sessionConfig config.SessionConfig
	redisConfig   config.RedisConfig
	logger        *zap.Logger
}

// SessionStoreFactoryOption is a functional option for configuring the factory
type SessionStoreFactoryOption func(*SessionStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) SessionStoreFactoryOption {
	return func(f *SessionStoreFactory) {
		f.logger = logger
	}
}

// NewSessionStoreFactory creates a new factory
func NewSessionStoreFactory(sessionCfg config.SessionConfig, redisCfg config.RedisConfig, opts ...SessionStoreFactoryOption) *SessionStoreFactory {
	f := &SessionStoreFactory{
		sessionConfig: sessionCfg,
		redisConfig:   redisCfg,
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateStore creates the configured store. When Redis is configured but
// unreachable, an in-memory store is returned if fallback is enabled.
func (f *SessionStoreFactory) CreateStore(ctx context.Context) (viewer.SessionStore, error) {
	if f.sessionConfig.Store != "redis" {
		f.logger.Info("using in-memory viewer session store")
		return NewInMemorySessionStore(f.sessionConfig.CleanupInterval), nil
	}

	store, err := NewRedisSessionStore(ctx, f.redisConfig, f.sessionConfig.KeyPrefix)
	if err == nil {
		f.logger.Info("using Redis viewer session store", zap.String("addr", f.redisConfig.Addr()))
		return store, nil
	}

	if !f.sessionConfig.FallbackToMemory {
		return nil, fmt.Errorf("Redis required for viewer sessions but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory viewer session store. "+
		"Sessions are lost on restart and not shared between instances.",
		zap.Error(err),
	)
	return NewInMemorySessionStore(f.sessionConfig.CleanupInterval), nil
}
