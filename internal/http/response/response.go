package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
)

// Problem is the body of every non-2xx response.
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type problemBody struct {
	Error Problem `json:"error"`
}

// RespondError writes {"error": {...}} and marks the gin context so the
// request logger picks the error up.
func RespondError(c *gin.Context, status int, code string, err error) {
	p := Problem{Code: code, Message: http.StatusText(status)}
	if err != nil {
		_ = c.Error(err)
		if status < http.StatusInternalServerError {
			p.Message = err.Error()
		}
	}
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		p.RequestID = td.RequestID
	}
	c.AbortWithStatusJSON(status, problemBody{Error: p})
}

type mapping struct {
	target error
	status int
	code   string
}

var known = []mapping{
	{errs.ErrNotFound, http.StatusNotFound, "not_found"},
	{errs.ErrClaimLost, http.StatusConflict, "claim_lost"},
	{errs.ErrRunAborted, http.StatusConflict, "run_aborted"},
	{errs.ErrSource, http.StatusBadGateway, "source_unavailable"},
}

// RespondInternal maps engine sentinels to a status. Anything unmapped is a
// 500 whose message is not echoed back.
func RespondInternal(c *gin.Context, err error) {
	for _, m := range known {
		if errors.Is(err, m.target) {
			RespondError(c, m.status, m.code, err)
			return
		}
	}
	if errs.IsUniqueViolation(err) {
		RespondError(c, http.StatusConflict, "conflict", err)
		return
	}
	RespondError(c, http.StatusInternalServerError, "internal", err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
