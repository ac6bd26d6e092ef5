package middleware

import (
	"net/http"
	"strings"

	"Messenger/tools/errs"
	"Messenger/tools/security"

	"github.com/gin-gonic/gin"
)

// CtxUserIDKey is where Auth leaves the verified user ID for handlers.
const CtxUserIDKey = "userId"

// Auth guards REST endpoints with the same bearer credential the
// websocket handshake uses.
func Auth(opts security.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}

		userID, err := security.Verify(opts, token)
		if err != nil {
			ce, ok := errs.AsCode(err)
			if !ok {
				ce = errs.ErrInvalidToken
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ce.Msg})
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}
