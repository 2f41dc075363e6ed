package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/http/response"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/sse/stream?automation=<id>
//
// Without an automation the stream carries events for every automation.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	channel := realtime.AllAutomationsChannel
	if ref := strings.TrimSpace(c.Query("automation")); ref != "" {
		id, err := uuid.Parse(ref)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_automation_id", err)
			return
		}
		channel = realtime.AutomationChannel(id)
	}

	client := h.hub.NewSSEClient()
	h.hub.AddChannel(client, channel)
	h.log.Debug("SSE stream open", "client_id", client.ID, "channel", channel)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("SSE stream closed", "client_id", client.ID)
}
