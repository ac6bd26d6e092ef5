package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Cors mirrors the permissive policy of the original deployment (the
// SPA and the API share an origin in production; dev runs them apart).
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
