package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-enrollment-api/internal/middleware"
	"github.com/noah-isme/batch-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/batch-enrollment-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// actorFromContext resolves the authenticated caller. Every service call
// receives the actor explicitly rather than reading it from the request.
func actorFromContext(c *gin.Context) (models.Actor, error) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return models.Actor{}, appErrors.ErrUnauthorized
	}
	return claims.Actor(), nil
}

func bindError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}
