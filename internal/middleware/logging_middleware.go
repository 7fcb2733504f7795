// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"telemetry-bridge/internal/utils"
)

// LoggingMiddleware logs every request through the service logger
func LoggingMiddleware(logger *utils.ServiceLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		duration := time.Since(startTime)

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		reqLogger := &utils.ServiceLogger{
			Logger: utils.LoggerWithRequestID(logger.Logger, utils.RequestID(c)),
		}
		reqLogger.LogAPIRequest(
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			duration,
		)
		for _, err := range c.Errors {
			logger.Debug("Request error", zap.Error(err.Err))
		}
	}
}
