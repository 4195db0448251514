package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/uprightlabs/backend/internal/auth"
	"github.com/uprightlabs/backend/pkg/response"
)

// AdminGuard protects destructive endpoints with a bearer token when a
// token service is configured. With ts nil the endpoints stay open; auth is
// opt-in via config.
func AdminGuard(ts *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ts == nil {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		if _, err := ts.Validate(parts[1]); err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}
