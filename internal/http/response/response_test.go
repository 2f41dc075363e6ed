package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
)

func serve(t *testing.T, err error) (*httptest.ResponseRecorder, Problem, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodGet, "/api/automations/x", nil)
	c.Request = req.WithContext(ctxutil.WithTraceData(req.Context(), &ctxutil.TraceData{RequestID: "req-9"}))
	RespondInternal(c, err)
	var body problemBody
	if jerr := json.Unmarshal(rec.Body.Bytes(), &body); jerr != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), jerr)
	}
	return rec, body.Error, c
}

func TestRespondInternal(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("automation x: %w", errs.ErrNotFound), http.StatusNotFound, "not_found"},
		{errs.ErrClaimLost, http.StatusConflict, "claim_lost"},
		{fmt.Errorf("wrapped: %w", errs.ErrRunAborted), http.StatusConflict, "run_aborted"},
		{errs.Source(errors.New("bunny 503")), http.StatusBadGateway, "source_unavailable"},
		{errors.New("UNIQUE constraint failed: automations.name"), http.StatusConflict, "conflict"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		rec, p, c := serve(t, tc.err)
		if rec.Code != tc.status || p.Code != tc.code {
			t.Fatalf("%v: got %d %s", tc.err, rec.Code, p.Code)
		}
		if p.RequestID != "req-9" {
			t.Fatalf("request id %q", p.RequestID)
		}
		if !c.IsAborted() || len(c.Errors) != 1 {
			t.Fatalf("context not marked: aborted=%v errors=%d", c.IsAborted(), len(c.Errors))
		}
	}
}

func TestInternalMessageHidden(t *testing.T) {
	_, p, _ := serve(t, errors.New("password=hunter2 in dsn"))
	if p.Message != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("leaked %q", p.Message)
	}
	_, p, _ = serve(t, fmt.Errorf("automation nope: %w", errs.ErrNotFound))
	if p.Message != "automation nope: not found" {
		t.Fatalf("client error message %q", p.Message)
	}
}
