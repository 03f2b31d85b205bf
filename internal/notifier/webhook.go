package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookNotifier 运营告警Webhook
// 逻辑错误（无激活工位、订单无法路由）必须让人看到而不是悄悄丢掉，
// 同一告警做去重，只报一次不刷屏
type WebhookNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	reported map[string]struct{}
}

// alertPayload 告警消息体
type alertPayload struct {
	AlertType string `json:"alert_type"`
	OrderID   string `json:"order_id,omitempty"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// NewWebhookNotifier 创建Webhook告警器
// url 为空时告警只落日志（开发环境）
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2)

	return &WebhookNotifier{
		client:   client,
		url:      url,
		logger:   logger,
		reported: make(map[string]struct{}),
	}
}

// RoutingFailure 上报订单路由失败
func (n *WebhookNotifier) RoutingFailure(ctx context.Context, orderID string, reason string) {
	n.alert(ctx, alertPayload{
		AlertType: "routing_failure",
		OrderID:   orderID,
		Reason:    reason,
	}, "routing_failure:"+orderID)
}

// ConnectionLost 上报显示屏会话重连超限
func (n *WebhookNotifier) ConnectionLost(ctx context.Context, sessionName string, reason string) {
	n.alert(ctx, alertPayload{
		AlertType: "connection_lost",
		Reason:    reason,
	}, "connection_lost:"+sessionName)
}

func (n *WebhookNotifier) alert(ctx context.Context, payload alertPayload, dedupeKey string) {
	n.mu.Lock()
	if _, ok := n.reported[dedupeKey]; ok {
		n.mu.Unlock()
		return
	}
	n.reported[dedupeKey] = struct{}{}
	n.mu.Unlock()

	payload.Timestamp = time.Now().Unix()

	if n.url == "" {
		n.logger.Warn("Operator alert (no webhook configured)",
			zap.String("alert_type", payload.AlertType),
			zap.String("order_id", payload.OrderID),
			zap.String("reason", payload.Reason),
		)
		return
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.url)
	if err != nil {
		n.logger.Error("Failed to deliver operator alert",
			zap.String("alert_type", payload.AlertType),
			zap.Error(err),
		)
		return
	}
	if resp.IsError() {
		n.logger.Error("Operator alert endpoint returned error",
			zap.String("alert_type", payload.AlertType),
			zap.Int("status", resp.StatusCode()),
		)
	}
}
