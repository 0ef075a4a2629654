package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/clinicore/scheduling-api/internal/models"
	appErrors "github.com/clinicore/scheduling-api/pkg/errors"
	"github.com/clinicore/scheduling-api/pkg/response"
)

// RBAC enforces role-based access control for routes. The sentinel role
// "SELF" allows a patient through when the :id route param matches their own
// subject.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		allowSelf := false
		allowedRoles := make(map[models.UserRole]struct{})

		for _, a := range allowed {
			if a == "SELF" {
				allowSelf = true
				continue
			}
			allowedRoles[models.UserRole(a)] = struct{}{}
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
