package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelforge-backend/internal/observability"
	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	var seen *ctxutil.TraceData
	r.GET("/x", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "req-123")
	req.Header.Set(headerTraceID, "abc123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen == nil || seen.RequestID != "req-123" || seen.TraceID != "abc123" {
		t.Fatalf("trace data %+v", seen)
	}
	if rec.Header().Get(headerRequestID) != "req-123" || rec.Header().Get(headerTraceID) != "abc123" {
		t.Fatalf("headers %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "bad id\nwith newline")
	req.Header.Set(headerTraceID, strings.Repeat("a", 200))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if seen.RequestID == "" || strings.ContainsAny(seen.RequestID, " \n") {
		t.Fatalf("request id not regenerated: %q", seen.RequestID)
	}
	if len(seen.TraceID) != 32 {
		t.Fatalf("trace id not regenerated: %q", seen.TraceID)
	}
}

func TestMetricsMiddlewareRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/automations/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/automations/a", "/api/automations/b", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var buf strings.Builder
	if err := m.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `route="/api/automations/:id"`) || !strings.Contains(out, `route="unmatched"`) {
		t.Fatalf("missing route labels:\n%s", out)
	}
	if strings.Contains(out, `route="/api/automations/a"`) {
		t.Fatal("raw path leaked into labels")
	}
}
