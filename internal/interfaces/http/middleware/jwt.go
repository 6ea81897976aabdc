package middleware

import (
	"errors"
	"strings"

	"github.com/erp/receivables/internal/domain/shared"
	"github.com/erp/receivables/internal/infrastructure/auth"
	"github.com/erp/receivables/internal/infrastructure/logger"
	"github.com/erp/receivables/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	ActorKey       = "actor"
	AuthHeaderKey  = "Authorization"
	BearerPrefix   = "Bearer "
	TenantIDHeader = "X-Tenant-ID"
	UserIDHeader   = "X-User-ID"
)

var errMissingCredentials = errors.New("missing credentials")

// AuthConfig holds configuration for the authentication middleware
type AuthConfig struct {
	// JWTService validates bearer tokens. When nil the actor is read from
	// the X-Tenant-ID and X-User-ID headers, for local use only.
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultAuthConfig returns default authentication configuration
func DefaultAuthConfig(jwtService *auth.JWTService) AuthConfig {
	return AuthConfig{
		JWTService: jwtService,
		SkipPaths:  []string{"/health", "/api/v1/health"},
	}
}

// Auth resolves the calling actor and stores it on the gin context and
// on the request context, where services and the logger pick it up.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		var (
			actor shared.Actor
			err   error
		)
		if cfg.JWTService != nil {
			actor, err = actorFromToken(c, cfg.JWTService)
		} else {
			actor, err = actorFromHeaders(c)
		}
		if err != nil {
			log.Warn("Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
			)
			abortUnauthorized(c, err)
			return
		}

		c.Set(ActorKey, actor)
		c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func actorFromToken(c *gin.Context, svc *auth.JWTService) (shared.Actor, error) {
	header := c.GetHeader(AuthHeaderKey)
	if header == "" {
		return shared.Actor{}, errMissingCredentials
	}
	if !strings.HasPrefix(header, BearerPrefix) {
		return shared.Actor{}, auth.ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return shared.Actor{}, errMissingCredentials
	}
	claims, err := svc.ValidateToken(token)
	if err != nil {
		return shared.Actor{}, err
	}
	return claims.Actor()
}

func actorFromHeaders(c *gin.Context) (shared.Actor, error) {
	tenantHeader := c.GetHeader(TenantIDHeader)
	userHeader := c.GetHeader(UserIDHeader)
	if tenantHeader == "" || userHeader == "" {
		return shared.Actor{}, errMissingCredentials
	}
	tenantID, err := uuid.Parse(tenantHeader)
	if err != nil || tenantID == uuid.Nil {
		return shared.Actor{}, auth.ErrMissingTenantID
	}
	userID, err := uuid.Parse(userHeader)
	if err != nil {
		return shared.Actor{}, auth.ErrMissingUserID
	}
	return shared.NewActor(tenantID, userID), nil
}

func abortUnauthorized(c *gin.Context, err error) {
	code := dto.ErrCodeUnauthorized
	message := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		code, message = dto.ErrCodeTokenInvalid, "Token is not yet valid"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidClaims):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	case errors.Is(err, auth.ErrMissingTenantID), errors.Is(err, auth.ErrMissingUserID):
		message = "A tenant and a user are required"
	}
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

// ActorFrom returns the actor resolved by Auth
func ActorFrom(c *gin.Context) (shared.Actor, bool) {
	if v, ok := c.Get(ActorKey); ok {
		if a, ok := v.(shared.Actor); ok {
			return a, true
		}
	}
	return logger.ActorFrom(c.Request.Context())
}
