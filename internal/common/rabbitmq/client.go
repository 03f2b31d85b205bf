package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/common/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client RabbitMQ客户端封装
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial 建立RabbitMQ连接并打开channel
func Dial(cfg *config.RabbitConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Client{conn: conn, ch: ch}, nil
}

// Channel 获取底层channel
func (c *Client) Channel() *amqp.Channel { return c.ch }

// Ping 轻量健康检查
func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Consume 声明队列并开始消费（手动ack）
func (c *Client) Consume(ctx context.Context, queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if _, err := c.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume queue %s: %w", queue, err)
	}

	return deliveries, nil
}

// Close 关闭channel和连接
func (c *Client) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
