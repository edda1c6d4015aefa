package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/looplj/memvault/internal/metrics"
)

// WithMetrics records per-route request counts and latencies.
func WithMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		metrics.RecordRequest(c.Request.Context(), route, c.Writer.Status(), time.Since(start))
	}
}
