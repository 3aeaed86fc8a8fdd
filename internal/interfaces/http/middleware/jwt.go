package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/infrastructure/auth"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/interfaces/http/dto"
)

// Access token context keys
const (
	JWTClaimsKey     = "jwt_claims"
	JWTSubjectKey    = "jwt_subject"
	AccessTokenKey   = "access_token"
	AuthHeaderKey    = "Authorization"
	AccessTokenQuery = "access_token"
	BearerPrefix     = "Bearer "
)

// TokenValidator validates access tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	// Validator is required for token validation
	Validator TokenValidator
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't require authentication
	SkipPathPrefixes []string
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultJWTConfig returns default JWT middleware configuration
func DefaultJWTConfig(validator TokenValidator) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		Validator: validator,
		SkipPaths: []string{
			"/health",
			"/api/v1/health",
		},
		SkipPathPrefixes: []string{
			"/api/v1/system/",
		},
	}
}

// AccessToken returns the access token of a request. The Authorization
// header wins over the access_token query parameter.
func AccessToken(c *gin.Context) string {
	if token := c.GetString(AccessTokenKey); token != "" {
		return token
	}
	return auth.ExtractToken(c.GetHeader(AuthHeaderKey), c.Query(AccessTokenQuery))
}

// ForwardAccessToken passes the access token of each request on to the
// DICOMweb archives it reaches, whether or not the token is validated here.
func ForwardAccessToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := AccessToken(c); token != "" {
			c.Set(AccessTokenKey, token)
			ctx := dicomweb.WithHeaders(c.Request.Context(), map[string]string{
				AuthHeaderKey: BearerPrefix + token,
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// JWTAuthMiddleware creates JWT authentication middleware
func JWTAuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(validator))
}

// JWTAuthMiddlewareWithConfig creates JWT authentication middleware with custom config
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		claims, err := cfg.Validator.ValidateToken(AccessToken(c))
		if err != nil {
			handleAuthError(c, cfg, err)
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTSubjectKey, claims.Subject)

		if cfg.Logger != nil {
			cfg.Logger.Debug("JWT authentication successful",
				zap.String("subject", claims.Subject),
				zap.String("username", claims.Username),
			)
		}
		c.Next()
	}
}

func handleAuthError(c *gin.Context, cfg JWTMiddlewareConfig, err error) {
	if cfg.Logger != nil {
		cfg.Logger.Warn("JWT authentication failed",
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
		)
	}

	code := dto.ErrCodeUnauthorized
	message := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code = dto.ErrCodeTokenExpired
		message = "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code = dto.ErrCodeTokenInvalid
		message = "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrMissingSubject):
		code = dto.ErrCodeTokenInvalid
		message = "Invalid token"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTSubject returns the subject of the validated token, or "".
func GetJWTSubject(c *gin.Context) string {
	return c.GetString(JWTSubjectKey)
}
