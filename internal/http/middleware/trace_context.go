package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// Incoming ids end up in logs and response headers, so only short
// token-like values are accepted.
var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

func headerID(c *gin.Context, name string) string {
	v := strings.TrimSpace(c.GetHeader(name))
	if !validID.MatchString(v) {
		return ""
	}
	return v
}

// AttachTraceContext carries trace and request ids through the request
// context and response headers. The trace id prefers the active span so
// logs line up with exported traces.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reqID := headerID(c, headerRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		traceID := ""
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else if traceID = headerID(c, headerTraceID); traceID == "" {
			traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
		}
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(attribute.String("http.request_id", reqID))
			if id := c.Param("id"); id != "" {
				span.SetAttributes(attribute.String("reelforge.automation_id", id))
			}
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		}))
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}
