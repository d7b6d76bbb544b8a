package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/civicgrid/civicgrid-api/internal/models"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
	"github.com/civicgrid/civicgrid-api/pkg/response"
)

// RequireRoles allows only the listed roles past. It assumes JWT ran first.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff allows any role that can work on issues.
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(models.RoleFieldStaff, models.RoleSupervisor, models.RoleCommissioner, models.RoleEmployee, models.RoleAdmin)
}
