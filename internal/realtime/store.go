package realtime

import (
	"context"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
)

// Store 订单存储契约（引擎读写但不拥有schema和事务）
// "活跃" 指 completed_at IS NULL
type Store interface {
	InsertRoutingEntries(ctx context.Context, entries []*models.RoutingEntry) error
	UpdateRoutingEntry(ctx context.Context, id string, patch models.EntryPatch) error
	FetchActiveRoutingEntries(ctx context.Context, stationID string) ([]*models.RoutingEntry, error)
}

// EventBus 变更通知总线契约
// 引擎不假设事件的顺序和送达保证
type EventBus interface {
	Subscribe(ctx context.Context, collections ...string) (Subscription, error)
}

// Subscription 一次订阅；Close 后 Events 通道关闭
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Close() error
}
