package ws

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/akash-dev-18/astroid-tracker-and-risk-analyzer/internal/app"
)

// Frame is one outbound room event relayed between gateway instances.
// Origin is the publishing instance's id so subscribers can skip frames
// they broadcast locally already.
type Frame struct {
	Room    string `json:"room"`
	Origin  string `json:"origin"`
	Payload []byte `json:"payload"` // encoded wire envelope
}

type Bus struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewBus connects to redis and verifies connectivity
func NewBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Bus{rdb: rdb, log: log}, nil
}

// Publish sends a frame to the redis channel for a room
func (b *Bus) Publish(ctx context.Context, f Frame) error {
	raw, _ := json.Marshal(f)
	return b.rdb.Publish(ctx, channel(f.Room), raw).Err()
}

// Subscribe listens to all room channels and invokes fn for each frame
func (b *Bus) Subscribe(ctx context.Context, fn func(Frame)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg := <-ch:
			var f Frame
			_ = json.Unmarshal([]byte(msg.Payload), &f)
			if f.Room != "" {
				fn(f)
			}
		}
	}
}

// Close shuts down the redis connection
func (b *Bus) Close() { _ = b.rdb.Close() }

// channel namespacing for room pub/sub
func channel(room string) string { return "asteroid:" + room }
