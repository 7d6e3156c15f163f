package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
)

const (
	// ContextKeyCaller is the Gin context key for the authenticated model.Caller.
	ContextKeyCaller = "caller"
)

// TokenValidator turns a bearer token into the caller it identifies.
type TokenValidator interface {
	ValidateToken(tokenStr string) (model.Caller, error)
}

// RequireAuth validates a JWT from the Authorization header, falling back to ?token=
// for EventSource (SSE) clients which cannot send headers.
func RequireAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			tokenStr = c.Query("token")
		}
		authenticate(c, validator, tokenStr)
	}
}

// RequireWSAuth validates a JWT from the query param ?token=...
// Used for WebSocket upgrade requests.
func RequireWSAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticate(c, validator, c.Query("token"))
	}
}

// GetCaller retrieves the authenticated caller from the Gin context.
func GetCaller(c *gin.Context) (model.Caller, bool) {
	val, exists := c.Get(ContextKeyCaller)
	if !exists {
		return model.Caller{}, false
	}
	caller, ok := val.(model.Caller)
	return caller, ok
}

func authenticate(c *gin.Context, validator TokenValidator, tokenStr string) {
	if tokenStr == "" {
		response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	caller, err := validator.ValidateToken(tokenStr)
	if err != nil {
		code := response.ErrTokenInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = response.ErrTokenExpired
		}
		response.AbortFail(c, http.StatusUnauthorized, code)
		return
	}

	c.Set(ContextKeyCaller, caller)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
