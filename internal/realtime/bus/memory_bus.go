package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/reelforge-backend/internal/realtime"
)

// memoryBus fans messages out inside one process. It is used when REDIS_ADDR
// is not configured, e.g. a single `serve` process on SQLite.
type memoryBus struct {
	mu        sync.RWMutex
	listeners []func(realtime.SSEMessage)
}

func NewMemoryBus() Bus { return &memoryBus{} }

func (b *memoryBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(msg)
	}
	return nil
}

func (b *memoryBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *memoryBus) Close() error { return nil }
