package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lalith-99/campuslink/internal/auth"
	"github.com/lalith-99/campuslink/internal/models"
)

const contextKeyIdentity = "identity"

// AuthMiddleware validates the Bearer token and stores the resolved
// Identity in the request context. Invalid or missing tokens abort the
// chain with 401 before any handler runs.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(contextKeyIdentity, claims.Identity())
		c.Next()
	}
}

// GetIdentity returns the Identity stored by AuthMiddleware. The zero
// Identity (uuid.Nil id) is returned if the middleware did not run,
// which fails any owner-scoped query downstream.
func GetIdentity(c *gin.Context) models.Identity {
	val, exists := c.Get(contextKeyIdentity)
	if !exists {
		return models.Identity{}
	}
	id, ok := val.(models.Identity)
	if !ok {
		return models.Identity{}
	}
	return id
}

// GetUserID is shorthand for GetIdentity(c).ID.
func GetUserID(c *gin.Context) uuid.UUID {
	return GetIdentity(c).ID
}
