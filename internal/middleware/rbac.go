package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
	"github.com/noah-isme/batch-enrollment-api/pkg/response"
)

// RequireRoles enforces role-based access control for routes. Ownership of a
// specific enrollment is checked by the services, not here.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, _ := c.Get(ContextUserKey)
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
