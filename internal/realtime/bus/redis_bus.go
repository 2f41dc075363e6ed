package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/reelforge-backend/internal/platform/logger"
	"github.com/yungbote/reelforge-backend/internal/realtime"
)

// redisBus publishes each SSE channel on its own Redis channel
// "<prefix>:<sse channel>" and forwards everything under the prefix.
type redisBus struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// wirePayload is the Redis message body; the SSE channel travels in the
// Redis channel name.
type wirePayload struct {
	Event realtime.SSEEvent `json:"event"`
	Data  json.RawMessage   `json:"data,omitempty"`
}

func NewRedisBus(ctx context.Context, log *logger.Logger, cfg Config) (Bus, error) {
	prefix := strings.TrimSuffix(cfg.Prefix, ":")
	if prefix == "" {
		prefix = "reelforge:events"
	}
	rdb := goredis.NewClient(cfg.RedisOptions())
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Info("Using Redis event bus", "addr", cfg.Addr, "prefix", prefix)
	return &redisBus{log: log.With("service", "RedisEventBus"), rdb: rdb, prefix: prefix}, nil
}

func (b *redisBus) redisChannel(sse string) string { return b.prefix + ":" + sse }

// sseChannel is the inverse of redisChannel.
func (b *redisBus) sseChannel(redis string) (string, bool) {
	ch, ok := strings.CutPrefix(redis, b.prefix+":")
	return ch, ok && ch != ""
}

func encodePayload(msg realtime.SSEMessage) ([]byte, error) {
	p := wirePayload{Event: msg.Event}
	if msg.Data != nil {
		raw, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", msg.Event, err)
		}
		p.Data = raw
	}
	return json.Marshal(p)
}

func decodePayload(channel string, body []byte) (realtime.SSEMessage, error) {
	var p wirePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return realtime.SSEMessage{}, err
	}
	msg := realtime.SSEMessage{Channel: channel, Event: p.Event}
	if len(p.Data) > 0 {
		msg.Data = p.Data
	}
	return msg, nil
}

func (b *redisBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if msg.Channel == "" {
		return fmt.Errorf("publish %s: empty channel", msg.Event)
	}
	body, err := encodePayload(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.redisChannel(msg.Channel), body).Err()
}

func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	sub := b.rdb.PSubscribe(ctx, b.redisChannel("*"))
	// wait for the subscription confirmation so no event published after
	// return is missed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				channel, ok := b.sseChannel(m.Channel)
				if !ok {
					continue
				}
				msg, err := decodePayload(channel, []byte(m.Payload))
				if err != nil {
					b.log.Warn("Bad event payload", "channel", m.Channel, "error", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error { return b.rdb.Close() }

// RedisOptions is the client configuration shared by the bus and anything
// else that talks to the same Redis.
func (c Config) RedisOptions() *goredis.Options {
	return &goredis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: 5 * time.Second,
	}
}
