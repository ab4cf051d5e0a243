package logging

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware logs one entry per request. Server errors are logged at
// ERROR, client errors at WARN, everything else at DEBUG.
func GinMiddleware(l *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if userID, ok := c.Get("user_id"); ok {
			args = append(args, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			l.Error("request", args...)
		case status >= 400:
			l.Warn("request", args...)
		case l.Enabled(slog.LevelDebug):
			l.Debug("request", args...)
		}
	}
}
