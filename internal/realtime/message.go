package realtime

import "github.com/google/uuid"

type SSEEvent string

const (
	SSEEventAutomationProgress SSEEvent = "AutomationProgress"
	SSEEventAutomationStatus   SSEEvent = "AutomationStatus"
	SSEEventAutomationLog      SSEEvent = "AutomationLog"
)

// AllAutomationsChannel receives every automation event.
const AllAutomationsChannel = "automations"

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// AutomationChannel is the per-automation channel name.
func AutomationChannel(id uuid.UUID) string { return "automation:" + id.String() }
