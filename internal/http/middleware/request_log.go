package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// quietPaths are polled constantly by dashboards and probes.
var quietPaths = map[string]bool{
	"/healthcheck":                  true,
	"/metrics":                      true,
	"/api/sse/stream":               true,
	"/api/cron/health":              true,
	"/api/automations/:id/progress": true,
}

// RequestLogger writes one line per request. Operator actions (anything
// that is not a GET) are always logged at info or above.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		ctx := c.Request.Context()
		if td := ctxutil.GetTraceData(ctx); td != nil && td.RequestID != "" {
			fields = append(fields, "request_id", td.RequestID, "trace_id", td.TraceID)
		}
		if op := ctxutil.GetOperator(ctx); op != nil && op.Subject != "" {
			fields = append(fields, "operator", op.Subject)
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "automation_id", id)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("Request failed", fields...)
		case status >= 400:
			log.Warn("Request rejected", fields...)
		case c.Request.Method == "GET" && (quietPaths[route] || strings.HasPrefix(route, "/api/sse")):
			log.Debug("Request", fields...)
		default:
			log.Info("Request", fields...)
		}
	}
}
