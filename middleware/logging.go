package middleware

import (
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Logger writes one structured line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"method":           c.Request.Method,
			"path":             c.Request.URL.Path,
			"status":           status,
			"duration_ms":      time.Since(start).Milliseconds(),
			"client_ip":        c.ClientIP(),
			"request_id":       GetRequestID(c),
			"content_encoding": c.Writer.Header().Get("Content-Encoding"),
		})
		switch {
		case status >= 500:
			entry.Error("http.request")
		case status >= 400:
			entry.Warn("http.request")
		default:
			entry.Info("http.request")
		}
	}
}
