package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/telemetry"
)

// MetricsMiddleware records telemetry.HTTPRequestsTotal and
// telemetry.HTTPRequestDuration for every request.
//
// The path label is the matched route template (/api/admin/audit-logs/:id/undo)
// so record identifiers never become label values. Unmatched requests are
// labelled "<no-route>".
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
