package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/theset/backend/internal/services"
)

// Auth requires a valid sync bearer token on the request.
func Auth(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		subject, err := authService.ValidateSyncToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("subject", subject)
		c.Next()
	}
}

// OptionalVoter resolves the voter identity when a token is present but
// does not require one; voting also works with an anonymous fingerprint.
func OptionalVoter(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			if subject, err := authService.VoterFromToken(strings.TrimPrefix(header, "Bearer ")); err == nil {
				c.Set("voter_id", subject)
			}
		}
		c.Next()
	}
}
