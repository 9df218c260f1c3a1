package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reelhub/review-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route. Raw URLs would
// give every scanned path its own series.
const unmatchedRoute = "unmatched"

// Metrics records method, route template and status for every request.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
