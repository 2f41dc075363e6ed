package bus

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/realtime"
)

func TestRedisChannelMapping(t *testing.T) {
	b := &redisBus{prefix: "rf:events"}
	id := uuid.New()
	sse := realtime.AutomationChannel(id)

	got, ok := b.sseChannel(b.redisChannel(sse))
	if !ok || got != sse {
		t.Fatalf("round trip: %q %v", got, ok)
	}
	if _, ok := b.sseChannel("other:automations"); ok {
		t.Fatal("foreign prefix should be ignored")
	}
	if _, ok := b.sseChannel("rf:events:"); ok {
		t.Fatal("empty channel should be ignored")
	}
}

func TestPayloadCarriesEventAndData(t *testing.T) {
	msg := realtime.SSEMessage{
		Channel: realtime.AllAutomationsChannel,
		Event:   realtime.SSEEventAutomationProgress,
		Data:    map[string]int{"percent": 42},
	}
	body, err := encodePayload(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodePayload(msg.Channel, body)
	if err != nil {
		t.Fatal(err)
	}
	if got.Channel != msg.Channel || got.Event != msg.Event {
		t.Fatalf("got %+v", got)
	}
	var data map[string]int
	if err := json.Unmarshal(got.Data.(json.RawMessage), &data); err != nil || data["percent"] != 42 {
		t.Fatalf("data %v %v", data, err)
	}

	body, _ = encodePayload(realtime.SSEMessage{Channel: "x", Event: realtime.SSEEventAutomationStatus})
	if got, _ := decodePayload("x", body); got.Data != nil {
		t.Fatalf("expected nil data, got %v", got.Data)
	}
	if _, err := decodePayload("x", []byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
