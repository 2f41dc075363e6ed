package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := AutomationChannel(uuid.New())

	clientA := hub.NewSSEClient()
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAutomationStatus, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAutomationProgress, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventAutomationStatus {
		t.Fatalf("first event: want=%s got=%s", SSEEventAutomationStatus, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventAutomationProgress {
		t.Fatalf("second event: want=%s got=%s", SSEEventAutomationProgress, got.Event)
	}

	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	hub.CloseClient(clientA)
	select {
	case <-clientA.Done():
	default:
		t.Fatal("Done should be closed")
	}
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAutomationLog})

	clientB := hub.NewSSEClient()
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventAutomationLog})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventAutomationLog {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventAutomationLog, got.Event)
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient()
	hub.AddChannel(client, AllAutomationsChannel)

	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Broadcast(SSEMessage{Channel: AllAutomationsChannel, Event: SSEEventAutomationProgress, Data: i})
	}
	if len(client.Outbound) != cap(client.Outbound) {
		t.Fatalf("expected full buffer, got %d", len(client.Outbound))
	}
	hub.Broadcast(SSEMessage{Channel: "other", Event: SSEEventAutomationProgress})
}
