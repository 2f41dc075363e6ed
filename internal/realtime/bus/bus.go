// Package bus fans automation events out to every process serving SSE
// clients.
package bus

import (
	"context"
	"strings"

	"github.com/yungbote/reelforge-backend/internal/platform/envutil"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}

type Config struct {
	// Addr selects Redis pub/sub; empty keeps events in process.
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the Redis channels, one per SSE channel.
	Prefix string
}

func ConfigFromEnv() Config {
	return Config{
		Addr:     strings.TrimSpace(envutil.String("REDIS_ADDR", "")),
		Password: envutil.String("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
		Prefix:   strings.TrimSpace(envutil.String("REDIS_CHANNEL", "reelforge:events")),
	}
}

// New returns the Redis bus when cfg.Addr is set and an in-process bus
// otherwise.
func New(ctx context.Context, log *logger.Logger, cfg Config) (Bus, error) {
	if cfg.Addr == "" {
		log.Info("REDIS_ADDR not set; using in-process event bus")
		return NewMemoryBus(), nil
	}
	return NewRedisBus(ctx, log, cfg)
}
