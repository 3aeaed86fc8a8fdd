package router

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/infrastructure/config"
	"github.com/wsiviewer/backend/internal/infrastructure/logger"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
)

// EngineConfig holds everything NewEngine wires into the gin engine
type EngineConfig struct {
	HTTP       config.HTTPConfig
	Production bool
	Tracing    middleware.TracingConfig
	Metrics    middleware.HTTPMetricsConfig
	Logger     *zap.Logger
	// Tokens validates access tokens. Nil disables authentication, access
	// tokens are then only forwarded to the archive.
	Tokens middleware.TokenValidator
	// Limiter is nil when rate limiting is disabled.
	Limiter  *middleware.RateLimiter
	Handlers Handlers
}

// NewEngine builds the gin engine of the viewer API.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Metrics.Logger == nil {
		cfg.Metrics.Logger = log
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	security := middleware.DefaultSecurityConfig()
	security.HSTSEnabled = cfg.Production

	engine.Use(
		middleware.RequestID(),
		middleware.TracingWithConfig(cfg.Tracing),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(cfg.Metrics),
		middleware.SecureWithConfig(security),
		middleware.CORSWithConfig(corsConfig(cfg.HTTP)),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.ForwardAccessToken(),
	)

	engine.GET("/health", cfg.Handlers.System.Health)

	r := NewRouter(engine, WithAPIVersion("v1"))
	if cfg.Tokens != nil {
		jwtCfg := middleware.DefaultJWTConfig(cfg.Tokens)
		jwtCfg.Logger = log
		r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtCfg))
	}
	if cfg.Limiter != nil {
		r.Use(middleware.RateLimit(cfg.Limiter))
	}
	r.Use(middleware.TracingAttributeInjector())

	var routes []string
	for _, group := range cfg.Handlers.Groups() {
		r.Register(group)
		for _, rt := range group.Routes() {
			method, path, _ := strings.Cut(rt, " ")
			routes = append(routes, method+" "+r.Prefix()+path)
		}
	}
	r.Setup()
	log.Debug("API routes registered", zap.Strings("routes", routes))

	return engine, nil
}

func corsConfig(cfg config.HTTPConfig) middleware.CORSConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowOrigins) > 0 {
		cors.AllowOrigins = cfg.CORSAllowOrigins
	}
	if len(cfg.CORSAllowMethods) > 0 {
		cors.AllowMethods = cfg.CORSAllowMethods
	}
	if len(cfg.CORSAllowHeaders) > 0 {
		cors.AllowHeaders = cfg.CORSAllowHeaders
	}
	return cors
}
