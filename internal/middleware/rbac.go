package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
)

// RequireRole checks that the authenticated caller has the given role.
// Must run after RequireAuth or RequireWSAuth.
func RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if caller.Role != role {
			response.AbortFail(c, http.StatusForbidden, roleDenied(role))
			return
		}

		c.Next()
	}
}

func roleDenied(role model.Role) response.ErrCode {
	switch role {
	case model.RoleStudent:
		return response.ErrStudentAccessOnly
	case model.RoleAdmin:
		return response.ErrAdminAccessOnly
	default:
		return response.ErrForbidden
	}
}
