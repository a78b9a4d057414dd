package logger

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-Id"
	ginLoggerKey    = "request_logger"
)

// Middleware tags each request with a request_id, stores a request-scoped
// logger on the gin context, and emits one summary line per request. Webhook
// handlers pull the same logger back with FromGin so every line for a call
// turn carries one id.
func Middleware(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(headerRequestID, rid)

		reqLogger := l.With("request_id", rid)
		c.Set(ginLoggerKey, reqLogger)

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case len(c.Errors) > 0:
			reqLogger.Error("http request", append(attrs, "errors", c.Errors.String())...)
		case c.Writer.Status() >= 500:
			reqLogger.Error("http request", attrs...)
		default:
			reqLogger.Info("http request", attrs...)
		}
	}
}

// FromGin returns the request-scoped logger, or the process default when the
// middleware did not run.
func FromGin(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginLoggerKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
