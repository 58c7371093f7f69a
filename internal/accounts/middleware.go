package accounts

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/subkeyhq/gateway/internal/httperr"
)

const principalKey = "principal"

// RequireAuth validates the owner session token and places the resulting
// Principal in the request context.
func RequireAuth(sessions *SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httperr.Respond(c, httperr.Unauthorized("Authorization header required"))
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			httperr.Respond(c, httperr.Unauthorized("Invalid authorization format. Use: Authorization: Bearer <token>"))
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		principal, err := sessions.Verify(token)
		if err != nil {
			httperr.Respond(c, httperr.Unauthorized("invalid or expired session"))
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the authenticated principal placed in the context
// by RequireAuth.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*Principal)
	return principal, ok
}
