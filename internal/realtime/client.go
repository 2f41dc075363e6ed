package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

// clientBuffer is how many events a slow SSE client may lag behind before
// the hub starts dropping for it.
const clientBuffer = 32

// SSEClient is one open event stream. Channels is guarded by the hub lock.
type SSEClient struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	Logger   *logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newSSEClient(log *logger.Logger) *SSEClient {
	id := uuid.New()
	return &SSEClient{
		ID:       id,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, clientBuffer),
		Logger:   log.With("client_id", id),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub closes the client.
func (c *SSEClient) Done() <-chan struct{} { return c.done }
