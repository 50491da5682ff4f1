package middleware

import (
	"net/http"
	"strings"

	"biscuit-backend/models"
	"biscuit-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	userIDKey   = "user_id"
	userRoleKey = "user_role"
)

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.Split(c.GetHeader("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userRoleKey, claims.Role)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid bearer token is present and
// lets anonymous visitors through. A bad token is treated as no token, so
// an expired login degrades to a guest cart instead of an error.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if claims, err := utils.ValidateToken(token); err == nil {
				c.Set(userIDKey, claims.UserID)
				c.Set(userRoleKey, claims.Role)
			}
		}
		c.Next()
	}
}

// CurrentPrincipal returns the identity set by AuthMiddleware or
// OptionalAuth.
func CurrentPrincipal(c *gin.Context) models.Principal {
	v, ok := c.Get(userIDKey)
	if !ok {
		return models.Anonymous()
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return models.Anonymous()
	}
	return models.AuthenticatedAs(id)
}
