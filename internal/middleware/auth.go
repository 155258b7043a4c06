package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/synesthesie/artmarket/internal/config"
	"github.com/synesthesie/artmarket/internal/models"
	"github.com/synesthesie/artmarket/internal/services"
	"github.com/synesthesie/artmarket/pkg/jwt"
)

const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
)

// Auth rejects requests without a valid access token.
func Auth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := callerFromRequest(c, cfg.JWTSecret)
		if err != nil || caller == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(services.KindUnauthorized),
				"message": "Authentication required",
			})
			return
		}
		setCaller(c, caller)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a token is present. Invalid tokens
// are treated as anonymous.
func OptionalAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := callerFromRequest(c, cfg.JWTSecret)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("ignoring invalid token")
		}
		if caller != nil {
			setCaller(c, caller)
		}
		c.Next()
	}
}

// CallerFrom returns the caller stored by Auth or OptionalAuth, or nil.
func CallerFrom(c *gin.Context) *services.Caller {
	id, ok := c.Get(userIDKey)
	if !ok {
		return nil
	}
	userID, ok := id.(uuid.UUID)
	if !ok {
		return nil
	}
	role, _ := c.Get(userRoleKey)
	r, _ := role.(models.Role)
	return &services.Caller{UserID: userID, Role: r}
}

func setCaller(c *gin.Context, caller *services.Caller) {
	c.Set(userIDKey, caller.UserID)
	c.Set(userRoleKey, caller.Role)
}

// callerFromRequest returns nil, nil when no bearer token was sent.
func callerFromRequest(c *gin.Context, secret string) (*services.Caller, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, nil
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return nil, jwt.ErrInvalidToken
	}

	claims, err := jwt.ValidateToken(strings.TrimSpace(token), secret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != jwt.AccessToken {
		return nil, jwt.ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, jwt.ErrInvalidToken
	}

	role := models.Role(claims.Role)
	switch role {
	case models.RoleArtist, models.RoleAdmin, models.RoleBuyer:
	default:
		role = models.RoleBuyer
	}
	return &services.Caller{UserID: userID, Role: role}, nil
}
