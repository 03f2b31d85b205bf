package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/rabbitmq"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/realtime"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/router"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// OperatorNotifier 运营告警通道
// 路由失败属于逻辑错误：必须上报一次，绝不静默丢单，也绝不重试
type OperatorNotifier interface {
	RoutingFailure(ctx context.Context, orderID string, reason string)
}

// EventPublisher 变更事件发布端
type EventPublisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// OrderMessage 点餐流程投递的原始订单消息
// items 可能是字符串数组或对象数组，在此边界规范化
type OrderMessage struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Items      json.RawMessage `json:"items"`
	TableID    *string         `json:"table_id,omitempty"`
	TableLabel string          `json:"table_label,omitempty"`
	SeatID     *string         `json:"seat_id,omitempty"`
	SeatLabel  string          `json:"seat_label,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OrderConsumer 订单摄入消费者
// 新订单 -> 规范化 -> 工位路由 -> 写入存储 -> 发布变更事件
type OrderConsumer struct {
	rmq      *rabbitmq.Client
	router   *router.Router
	store    realtime.Store
	bus      EventPublisher
	notifier OperatorNotifier
	logger   *zap.Logger
	queue    string
	prefetch int
}

// NewOrderConsumer 创建订单消费者
func NewOrderConsumer(
	rmq *rabbitmq.Client,
	rt *router.Router,
	store realtime.Store,
	bus EventPublisher,
	notifier OperatorNotifier,
	logger *zap.Logger,
	queue string,
	prefetch int,
) *OrderConsumer {
	return &OrderConsumer{
		rmq:      rmq,
		router:   rt,
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger,
		queue:    queue,
		prefetch: prefetch,
	}
}

// Start 启动消费循环（带指数退避）
func (c *OrderConsumer) Start(ctx context.Context) error {
	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		deliveries, err := c.rmq.Consume(ctx, c.queue, c.prefetch)
		if err != nil {
			c.logger.Error("Failed to start consuming orders",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}

		// 成功时重置退避时间
		backoffDuration = time.Second

		c.logger.Info("Order consumer started",
			zap.String("queue", c.queue),
		)

		if err := c.consumeLoop(ctx, deliveries); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		default:
			// 投递通道被关闭（连接断开），走重连
			c.logger.Warn("Order delivery channel closed, reconnecting")
		}
	}
}

// consumeLoop 消费投递直到通道关闭或 ctx 取消
func (c *OrderConsumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery 处理单条投递
// ack 策略：
//   - 载荷损坏 / 路由逻辑错误：ack（重试无意义，损坏消息告警后丢弃）
//   - 存储瞬时错误：nack requeue 重试
func (c *OrderConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	order, err := c.parseOrder(d.Body)
	if err != nil {
		c.logger.Error("Dropping malformed order message", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := c.ProcessOrder(ctx, order); err != nil {
		if errors.Is(err, router.ErrNoActiveStations) {
			// 逻辑错误：上报一次，不重试
			c.notifier.RoutingFailure(ctx, order.ID, err.Error())
			c.logger.Error("Order could not be routed",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			_ = d.Ack(false)
			return
		}

		// 瞬时错误：重新入队
		c.logger.Error("Failed to process order, requeueing",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

// parseOrder 解析并规范化订单消息
func (c *OrderConsumer) parseOrder(body []byte) (*models.Order, error) {
	var msg OrderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order message: %w", err)
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("order message missing id")
	}

	items, err := models.NormalizeItems(msg.Items)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", msg.ID, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("order %s has no items", msg.ID)
	}

	kind := models.OrderKind(msg.Kind)
	if kind != models.OrderKindBeverage {
		kind = models.OrderKindFood
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &models.Order{
		ID:         msg.ID,
		Items:      items,
		Kind:       kind,
		TableID:    msg.TableID,
		TableLabel: msg.TableLabel,
		SeatID:     msg.SeatID,
		SeatLabel:  msg.SeatLabel,
		CreatedAt:  createdAt,
		Status:     "new",
	}, nil
}

// ProcessOrder 路由订单并持久化路由条目，然后发布变更事件
func (c *OrderConsumer) ProcessOrder(ctx context.Context, order *models.Order) error {
	assignments, err := c.router.Route(order)
	if err != nil {
		return err
	}

	now := time.Now()
	entries := make([]*models.RoutingEntry, 0, len(assignments))
	for _, a := range assignments {
		entries = append(entries, &models.RoutingEntry{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			StationID: a.Station.ID,
			Sequence:  a.Sequence,
			Priority:  a.Priority,
			RoutedAt:  now,
		})
	}

	if err := c.store.InsertRoutingEntries(ctx, entries); err != nil {
		return fmt.Errorf("failed to persist routing entries for order %s: %w", order.ID, err)
	}

	c.logger.Info("Routed order",
		zap.String("order_id", order.ID),
		zap.Int("station_count", len(entries)),
	)

	// 发布变更事件让所有显示屏会话重拉快照
	for _, e := range entries {
		ev := models.ChangeEvent{
			Collection: models.CollectionRouting,
			EventType:  models.EventInsert,
			EntityID:   e.ID,
		}
		if err := c.bus.Publish(ctx, ev); err != nil {
			// 推送失败不致命：各会话的轮询兜底会补上
			c.logger.Warn("Failed to publish routing event",
				zap.String("entry_id", e.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}
