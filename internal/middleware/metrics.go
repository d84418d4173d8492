package middleware

import (
	"time"

	"github.com/apgms/apgms/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware observes request latency by route template and status.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
