package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// TokenValidator parses an access token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			msg := "invalid authorization header"
			if c.GetHeader("Authorization") == "" {
				msg = appErrors.ErrUnauthorized.Message
			}
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, msg))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
