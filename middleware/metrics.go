package middleware

import (
	"time"

	"rewards-backend/metrics"

	"github.com/gin-gonic/gin"
)

// Metrics reports every request by its route template.
func Metrics(recorder metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		recorder.RecordRequest(route, c.Writer.Status(), time.Since(start))
	}
}
