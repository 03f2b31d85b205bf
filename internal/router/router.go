package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/catalog"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"go.uber.org/zap"
)

// ErrNoActiveStations 目录中没有任何激活工位（逻辑错误，不重试，必须上报给运营人员）
var ErrNoActiveStations = errors.New("no active stations configured")

// 工位优先级：烤档出品最慢必须最早开工
const (
	priorityNormal = 1
	priorityGrill  = 2
)

// Assignment 路由结果：订单应分配到的一个工位
type Assignment struct {
	Station  models.Station
	Priority int
	Sequence int
}

// Router 工位路由器
type Router struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cat *catalog.Catalog, logger *zap.Logger) *Router {
	return &Router{
		catalog: cat,
		logger:  logger,
	}
}

// Route 计算订单应路由到的工位列表（有序）
// 规则：
//  1. 饮品订单走吧台快速通道（bar不激活时退回默认路由）
//  2. 按关键字表匹配工位类型，sequence 按表定义顺序递增
//  3. 无任何匹配时兜底到 expo，expo 不激活则取 position 最小的激活工位
//     （保证每个订单至少在一个显示屏上可见）
func (r *Router) Route(order *models.Order) ([]Assignment, error) {
	if !r.catalog.HasActive() {
		return nil, fmt.Errorf("route order %s: %w", order.ID, ErrNoActiveStations)
	}

	// 饮品快速通道
	if order.Kind == models.OrderKindBeverage {
		if bar, ok := r.catalog.ActiveByType(models.StationTypeBar); ok {
			return []Assignment{{Station: *bar, Priority: priorityNormal, Sequence: 1}}, nil
		}
		// bar 不激活时按普通订单处理
	}

	blob := itemBlob(order.Items)

	var assignments []Assignment
	seq := 1
	for _, entry := range stationKeywords {
		if !matchAny(blob, entry.Keywords) {
			continue
		}
		station, ok := r.catalog.ActiveByType(entry.Type)
		if !ok {
			// 该类型有匹配但没有激活工位，跳过
			continue
		}
		priority := priorityNormal
		if entry.Type == models.StationTypeGrill {
			priority = priorityGrill
		}
		assignments = append(assignments, Assignment{
			Station:  *station,
			Priority: priority,
			Sequence: seq,
		})
		seq++
	}

	if len(assignments) > 0 {
		r.logger.Debug("Routed order by keywords",
			zap.String("order_id", order.ID),
			zap.Int("station_count", len(assignments)),
		)
		return assignments, nil
	}

	// 兜底路由
	fallback, ok := r.catalog.ActiveByType(models.StationTypeExpo)
	if !ok {
		fallback, _ = r.catalog.FirstActive()
	}

	r.logger.Debug("Routed order to fallback station",
		zap.String("order_id", order.ID),
		zap.String("station_id", fallback.ID),
	)

	return []Assignment{{Station: *fallback, Priority: priorityNormal, Sequence: 1}}, nil
}

// itemBlob 将所有项目名称小写拼接为匹配文本
func itemBlob(items []models.Item) string {
	var b strings.Builder
	for _, item := range items {
		b.WriteString(strings.ToLower(item.Name))
		b.WriteString(" ")
	}
	return b.String()
}

func matchAny(blob string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(blob, kw) {
			return true
		}
	}
	return false
}
