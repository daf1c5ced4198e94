package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-live/uniqueid/pkg/jwt"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/log"
	"github.com/weiawesome/wes-io-live/uniqueid/pkg/response"
)

const (
	SubjectKey    = log.FieldSubject
	RolesKey      = "roles"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// RequireAuth returns a Gin middleware that validates bearer JWT tokens.
// A nil validator disables the check.
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			return
		}

		claims, err := validator.ValidateToken(strings.TrimPrefix(authHeader, BearerPrefix))
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(SubjectKey, claims.Subject)
		c.Set(RolesKey, claims.Roles)

		c.Next()
	}
}

// GetSubject extracts the token subject from Gin context.
func GetSubject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}
