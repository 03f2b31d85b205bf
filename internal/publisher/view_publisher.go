package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"go.uber.org/zap"
)

// PushClient 视图推送客户端（MQTT）
type PushClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// ViewPublisher 视图模型分发器
// 每个聚合tick把派生视图写入Redis短TTL缓存（API服务读取），
// 并通过MQTT推送到在线显示屏
type ViewPublisher struct {
	kv     KVStore
	push   PushClient
	logger *zap.Logger
	qos    byte

	// 缓存TTL略大于聚合间隔即可，派生值绝不跨tick缓存
	cacheTTL time.Duration
}

// ViewSnapshot 一次聚合产出的完整视图模型
type ViewSnapshot struct {
	Tables      []models.TableGroup           `json:"tables"`
	Stations    map[string][]models.EntryView `json:"stations"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// NewViewPublisher 创建视图分发器
// push 为 nil 时只写缓存不推送
func NewViewPublisher(kv KVStore, push PushClient, logger *zap.Logger, qos byte, cacheTTL time.Duration) *ViewPublisher {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Second
	}
	return &ViewPublisher{
		kv:       kv,
		push:     push,
		logger:   logger,
		qos:      qos,
		cacheTTL: cacheTTL,
	}
}

// PublishSnapshot 缓存并推送一次快照
func (p *ViewPublisher) PublishSnapshot(ctx context.Context, snapshot *ViewSnapshot) error {
	tablesJSON, err := json.Marshal(snapshot.Tables)
	if err != nil {
		return fmt.Errorf("failed to marshal table groups: %w", err)
	}

	if err := p.kv.Set(ctx, "kds:view:tables", string(tablesJSON), p.cacheTTL); err != nil {
		return fmt.Errorf("failed to cache table view: %w", err)
	}

	p.pushPayload("kds/view/tables", tablesJSON)

	for stationID, views := range snapshot.Stations {
		stationJSON, err := json.Marshal(views)
		if err != nil {
			return fmt.Errorf("failed to marshal station view %s: %w", stationID, err)
		}

		key := fmt.Sprintf("kds:view:station:%s", stationID)
		if err := p.kv.Set(ctx, key, string(stationJSON), p.cacheTTL); err != nil {
			return fmt.Errorf("failed to cache station view %s: %w", stationID, err)
		}

		p.pushPayload(fmt.Sprintf("kds/view/station/%s", stationID), stationJSON)
	}

	p.logger.Debug("Published view snapshot",
		zap.Int("table_count", len(snapshot.Tables)),
		zap.Int("station_count", len(snapshot.Stations)),
	)

	return nil
}

func (p *ViewPublisher) pushPayload(topic string, payload []byte) {
	if p.push == nil || !p.push.IsConnected() {
		return
	}
	if err := p.push.Publish(topic, p.qos, false, payload); err != nil {
		// 推送失败不致命：显示屏自己的轮询兜底会补上
		p.logger.Warn("Failed to push view payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
