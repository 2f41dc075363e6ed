package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/reelforge-backend/internal/automation/cron"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	"github.com/yungbote/reelforge-backend/internal/http/response"
	"github.com/yungbote/reelforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type CronHandler struct {
	log    *logger.Logger
	driver *cron.Driver
	repo   repos.AutomationRepo
	now    func() time.Time
}

func NewCronHandler(log *logger.Logger, driver *cron.Driver, repo repos.AutomationRepo) *CronHandler {
	return &CronHandler{log: log.With("handler", "CronHandler"), driver: driver, repo: repo, now: time.Now}
}

// POST /api/cron/tick
//
// External schedulers call this instead of running the in-process loop. The
// tick runs in the background unless ?wait=1 is given.
func (h *CronHandler) Tick(c *gin.Context) {
	if c.Query("wait") == "1" {
		report, err := h.driver.Tick(c.Request.Context())
		if err != nil {
			response.RespondInternal(c, err)
			return
		}
		response.RespondOK(c, report)
		return
	}
	bg := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.driver.Tick(bg); err != nil {
			h.log.Error("Background cron tick failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"started": true})
}

// GET /api/cron/health
func (h *CronHandler) Health(c *gin.Context) {
	rows, err := h.repo.List(dbctx.New(c.Request.Context()))
	if err != nil {
		response.RespondInternal(c, err)
		return
	}
	response.RespondOK(c, cron.Health(h.now(), rows))
}
