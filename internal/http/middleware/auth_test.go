package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am, err := NewAuthMiddleware(logger.Nop(), "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	r := gin.New()
	r.Use(am.RequireAuth())
	r.POST("/run", func(c *gin.Context) {
		op := ctxutil.GetOperator(c.Request.Context())
		c.String(http.StatusOK, op.Subject)
	})

	good, err := am.SignToken("ops@reelforge", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := am.SignToken("ops@reelforge", -time.Minute)
	other, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte("other"))

	cases := []struct {
		name   string
		header string
		query  string
		want   int
		body   string
	}{
		{name: "bearer", header: "Bearer " + good, want: http.StatusOK, body: "ops@reelforge"},
		{name: "query", query: "?token=" + good, want: http.StatusOK, body: "ops@reelforge"},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, want: http.StatusUnauthorized},
		{name: "wrong key", header: "Bearer " + other, want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/run"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: got=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("body: got=%q want=%q", rec.Body.String(), tc.body)
			}
		})
	}

	if _, err := NewAuthMiddleware(logger.Nop(), " "); err == nil {
		t.Fatal("empty secret should be rejected")
	}
}
