package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/braingame/waitlist-core/internal/pkg/jwt"
	"github.com/braingame/waitlist-core/internal/pkg/response"
)

// Auth guards the admin surface (subscriber export, rate-limit reset).
// It accepts either the raw configured admin secret or a JWT signed with it,
// so operators can hand out short-lived tokens without sharing the secret.
func Auth(adminSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" || adminSecret == "" {
			response.Unauthorized(c)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(adminSecret)) == 1 {
			c.Next()
			return
		}
		if _, err := jwt.Parse(token); err != nil {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}
