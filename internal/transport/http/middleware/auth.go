package middleware

import (
	"net/http"
	"strings"

	"github.com/ErlanBelekov/backend-skeleton/internal/auth"
	ctxlog "github.com/ErlanBelekov/backend-skeleton/internal/log"
	"github.com/gin-gonic/gin"
)

const errUnauthorized = "Unauthorized"

type tokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth validates a Bearer JWT and sets "userID" and "username" in the gin context.
func Auth(verifier tokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		rawToken := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		claims, err := verifier.Verify(rawToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			return
		}

		c.Set("userID", claims.Subject)
		c.Set("username", claims.Username)
		c.Request = c.Request.WithContext(ctxlog.WithUserID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}
