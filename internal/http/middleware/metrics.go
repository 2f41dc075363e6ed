package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelforge-backend/internal/observability"
)

// Metrics counts requests per matched route. SSE streams are counted but
// their duration is not observed, since they stay open for the life of the
// dashboard.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		route := c.FullPath()
		streaming := route == "/api/sse/stream"
		start := time.Now()
		if !streaming {
			m.ApiInflightInc()
			defer m.ApiInflightDec()
		}

		c.Next()

		if route == "" {
			// unmatched paths would otherwise blow up label cardinality
			route = "unmatched"
		}
		var dur time.Duration
		if !streaming {
			dur = time.Since(start)
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), dur)
	}
}
