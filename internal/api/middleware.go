package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"continuouscare/internal/logging"
	"continuouscare/internal/processor"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}

// AuthMiddleware resolves the AuthToken header against the session
// registry and stores the username and role in the request context.
func AuthMiddleware(proc *processor.Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("AuthToken")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"status": statusArguments,
				"msg":    `This path requires an authentication token on headers named "AuthToken"`,
			})
			return
		}

		username, role, ok := proc.Authenticate(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status": statusAuthentication,
				"msg":    "Invalid Token.",
			})
			return
		}

		c.Set("username", username)
		c.Set("role", role)
		c.Set("token", token)
		c.Next()
	}
}
