package middleware

import (
	"crypto/subtle"
	"strings"

	appErr "judgehost/pkg/errors"
	"judgehost/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const (
	tokenHeader = "X-Sandbox-Token"
	tokenField  = "token"
)

// TokenAuthMiddleware admits requests carrying the shared sandbox token in the
// X-Sandbox-Token header, the token query parameter or the token form field.
// An empty expected token disables the check.
func TokenAuthMiddleware(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		token := strings.TrimSpace(c.GetHeader(tokenHeader))
		if token == "" {
			token = c.Query(tokenField)
		}
		if token == "" {
			token = c.PostForm(tokenField)
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			response.AbortWithError(c, appErr.UnauthorizedError("invalid sandbox token"))
			return
		}
		c.Next()
	}
}
