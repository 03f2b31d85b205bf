package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisBus 基于 Redis pub/sub 的事件总线
// 频道名即集合名（routing / orders），载荷为 ChangeEvent JSON
type RedisBus struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBus 创建Redis事件总线
func NewRedisBus(client *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger,
	}
}

// Publish 发布变更事件到集合对应的频道
func (b *RedisBus) Publish(ctx context.Context, ev models.ChangeEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, ev.Collection, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", ev.Collection, err)
	}
	return nil
}

// Subscribe 订阅集合频道
func (b *RedisBus) Subscribe(ctx context.Context, collections ...string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, collections...)

	// 等待订阅确认，失败时立即暴露给退避逻辑
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", collections, err)
	}

	out := make(chan models.ChangeEvent)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("Dropping malformed change event",
					zap.String("channel", msg.Channel),
					zap.Error(err),
				)
				continue
			}
			if ev.Collection == "" {
				ev.Collection = msg.Channel
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &redisSubscription{ps: ps, out: out}, nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan models.ChangeEvent
}

func (s *redisSubscription) Events() <-chan models.ChangeEvent {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
