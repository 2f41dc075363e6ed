package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/automation/claim"
	"github.com/yungbote/reelforge-backend/internal/automation/defs"
	"github.com/yungbote/reelforge-backend/internal/automation/errs"
	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/runner"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	types "github.com/yungbote/reelforge-backend/internal/domain"
	"github.com/yungbote/reelforge-backend/internal/domain/automation"
	"github.com/yungbote/reelforge-backend/internal/http/response"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type AutomationHandlerDeps struct {
	Log     *logger.Logger
	Repos   repos.Set
	Runner  *runner.Runner
	Coord   *claim.Coordinator
	Tracker *rotation.Tracker
	Now     func() time.Time
}

type AutomationHandler struct {
	log     *logger.Logger
	repos   repos.Set
	runner  *runner.Runner
	coord   *claim.Coordinator
	tracker *rotation.Tracker
	now     func() time.Time
}

func NewAutomationHandlerWithDeps(deps AutomationHandlerDeps) *AutomationHandler {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AutomationHandler{
		log:     log.With("handler", "AutomationHandler"),
		repos:   deps.Repos,
		runner:  deps.Runner,
		coord:   deps.Coord,
		tracker: deps.Tracker,
		now:     now,
	}
}

// load resolves :id as a uuid first and a name second.
func (h *AutomationHandler) load(c *gin.Context) (*types.Automation, bool) {
	ref := strings.TrimSpace(c.Param("id"))
	dbc := dbctx.New(c.Request.Context())
	var (
		a   *types.Automation
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		a, err = h.repos.Automations.GetByID(dbc, id)
	} else {
		a, err = h.repos.Automations.GetByName(dbc, ref)
	}
	if err != nil {
		response.RespondInternal(c, err)
		return nil, false
	}
	if a == nil {
		response.RespondError(c, http.StatusNotFound, "automation_not_found", fmt.Errorf("automation %q: %w", ref, errs.ErrNotFound))
		return nil, false
	}
	return a, true
}

func queryLimit(c *gin.Context, fallback, max int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}

// GET /api/automations
func (h *AutomationHandler) List(c *gin.Context) {
	rows, err := h.repos.Automations.List(dbctx.New(c.Request.Context()))
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, gin.H{"automations": rows})
}

// GET /api/automations/:id
func (h *AutomationHandler) Get(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	response.RespondOK(c, gin.H{"automation": a})
}

// LiveStatus is what dashboards poll while a run is in flight.
type LiveStatus struct {
	AutomationID  uuid.UUID                  `json:"automation_id"`
	Status        automation.Status          `json:"status"`
	Progress      int                        `json:"progress"`
	Data          automation.ProgressPayload `json:"data"`
	LastUpdate    *time.Time                 `json:"last_update,omitempty"`
	NextRunAt     *time.Time                 `json:"next_run_at,omitempty"`
	Enabled       bool                       `json:"enabled"`
	QueuePosition int                        `json:"queue_position"`
	Logs          []*types.AutomationLog     `json:"logs,omitempty"`
	Done          bool                       `json:"done"`
}

// Done reports whether a poller can stop: the automation is in a terminal
// state, or it is idle with a completed run and a future next run.
func Done(a *types.Automation, now time.Time) bool {
	switch a.Status {
	case automation.StatusCompleted, automation.StatusError, automation.StatusStopped, automation.StatusInactive:
		return true
	case automation.StatusRunning:
		return a.ProgressPercent >= 100 && a.NextRunAt != nil && a.NextRunAt.After(now)
	}
	return false
}

// GET /api/automations/:id/progress
func (h *AutomationHandler) Progress(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	out := LiveStatus{
		AutomationID: a.ID,
		Status:       a.Status,
		Progress:     a.ProgressPercent,
		Data:         a.ProgressPayload(),
		LastUpdate:   a.LastProgressAt,
		NextRunAt:    a.NextRunAt,
		Enabled:      a.Enabled,
		Done:         Done(a, h.now()),
	}
	if a.Status == automation.StatusQueued {
		pos, err := h.coord.QueuePosition(ctx, a.ID)
		if err != nil {
			response.RespondInternal(c, err)
			return
		}
		out.QueuePosition = pos
		busy, err := h.repos.Automations.ListByStatus(dbctx.New(ctx), []automation.Status{automation.StatusProcessing})
		if err == nil && len(busy) > 0 {
			out.Data.Step = automation.StepInit
			out.Data.Status = automation.PayloadInfo
			out.Data.Message = fmt.Sprintf("Queue position: #%d. Waiting for '%s' to finish.", pos, busy[0].Name)
		}
	}
	if v := c.Query("with_logs"); v != "" && v != "0" && v != "false" {
		logs, err := h.repos.Logs.ListRecent(dbctx.New(ctx), a.ID, 10)
		if err != nil {
			response.RespondInternal(c, err)
			return
		}
		// oldest first, like a tail
		for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
			logs[i], logs[j] = logs[j], logs[i]
		}
		out.Logs = logs
	}
	response.RespondOK(c, out)
}

// GET /api/automations/:id/logs
func (h *AutomationHandler) Logs(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	logs, err := h.repos.Logs.ListRecent(dbctx.New(c.Request.Context()), a.ID, queryLimit(c, 50, 500))
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, gin.H{"logs": logs})
}

// GET /api/automations/:id/posts
func (h *AutomationHandler) Posts(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	posts, err := h.repos.Posts.ListByAutomation(dbctx.New(c.Request.Context()), a.ID, queryLimit(c, 50, 500))
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, gin.H{"posts": posts})
}

// GET /api/automations/:id/jobs
func (h *AutomationHandler) Jobs(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	jobs, err := h.repos.Jobs.ListByAutomation(dbctx.New(c.Request.Context()), a.ID, queryLimit(c, 50, 500))
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// GET /api/automations/:id/rotation
func (h *AutomationHandler) RotationStats(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	stats, err := h.tracker.Stats(c.Request.Context(), a)
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rotation": stats, "enabled": a.RotationEnabled, "auto_reset": a.RotationAutoReset})
}

// DELETE /api/automations/:id/rotation
func (h *AutomationHandler) ClearRotation(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	cycle := 0
	if raw := c.Query("cycle"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.RespondError(c, http.StatusBadRequest, "invalid_cycle", fmt.Errorf("cycle must be a positive integer"))
			return
		}
		cycle = n
	}
	n, err := h.tracker.ClearCycle(c.Request.Context(), a, cycle)
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	if cycle == 0 {
		cycle = a.Cycle()
	}
	response.RespondOK(c, gin.H{"cleared": n, "cycle": cycle})
}

type triggerResponse struct {
	Outcome       claim.Kind        `json:"outcome"`
	RunID         *uuid.UUID        `json:"run_id,omitempty"`
	QueuePosition int               `json:"queue_position,omitempty"`
	Status        automation.Status `json:"status,omitempty"`
}

// POST /api/automations/:id/run
func (h *AutomationHandler) Run(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	out, err := h.runner.StartAsync(c.Request.Context(), a.ID)
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	resp := triggerResponse{Outcome: out.Kind, QueuePosition: out.QueuePosition}
	if out.Automation != nil {
		resp.Status = out.Automation.Status
	}
	if op := ctxutil.GetOperator(c.Request.Context()); op != nil {
		h.log.Info("Manual trigger", "automation_id", a.ID, "operator", op.Subject, "outcome", out.Kind)
	}
	switch out.Kind {
	case claim.Claimed:
		resp.RunID = &out.RunID
		c.JSON(http.StatusAccepted, resp)
	case claim.Queued:
		c.JSON(http.StatusAccepted, resp)
	case claim.AlreadyRunning:
		c.JSON(http.StatusConflict, resp)
	default:
		c.JSON(http.StatusUnprocessableEntity, resp)
	}
}

// POST /api/automations/:id/stop
func (h *AutomationHandler) Stop(c *gin.Context) {
	a, ok := h.load(c)
	if !ok {
		return
	}
	stopped, err := h.runner.Stop(c.Request.Context(), a.ID)
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	if !stopped {
		response.RespondError(c, http.StatusConflict, "not_running", fmt.Errorf("automation %s is %s", a.Name, a.Status))
		return
	}
	response.RespondOK(c, gin.H{"stopped": true})
}

// POST /api/automations/import
func (h *AutomationHandler) Import(c *gin.Context) {
	f, err := defs.Parse(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_definitions", err)
		return
	}
	res, err := defs.Import(c.Request.Context(), h.repos.Automations, f, h.log)
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, gin.H{"created": res.Created, "updated": res.Updated})
}

// GET /api/automations/export
func (h *AutomationHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := defs.Export(c.Request.Context(), h.repos.Automations, &buf); err != nil {
		response.RespondInternal(c, err)
		return
	}
	c.Data(http.StatusOK, "application/yaml", buf.Bytes())
}
