package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/catalog"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
)

// State 路由条目的生命周期状态
type State string

const (
	StateNew       State = "new"       // 未开工
	StatePreparing State = "preparing" // 已开工未完成
	StateReady     State = "ready"     // 已完成
)

// ErrInvalidTransition 非法状态迁移
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// 紧急度阈值（秒）
const (
	urgencyGreenMax  int64 = 300
	urgencyYellowMax int64 = 600
)

// StateOf 从字段推导条目当前状态
func StateOf(e *models.RoutingEntry) State {
	switch {
	case e.CompletedAt != nil:
		return StateReady
	case e.StartedAt != nil:
		return StatePreparing
	default:
		return StateNew
	}
}

// Start 开工：NEW -> PREPARING
func Start(e *models.RoutingEntry, now time.Time) (models.EntryPatch, error) {
	if StateOf(e) != StateNew {
		return models.EntryPatch{}, fmt.Errorf("start entry %s in state %s: %w", e.ID, StateOf(e), ErrInvalidTransition)
	}
	return models.EntryPatch{StartedAt: &now}, nil
}

// Bump 出品：PREPARING -> READY
// 规范流程要求先经过 PREPARING；未开工的条目请用 ForceComplete
func Bump(e *models.RoutingEntry, now time.Time) (models.EntryPatch, error) {
	if StateOf(e) != StatePreparing {
		return models.EntryPatch{}, fmt.Errorf("bump entry %s in state %s: %w", e.ID, StateOf(e), ErrInvalidTransition)
	}
	return models.EntryPatch{CompletedAt: &now}, nil
}

// ForceComplete 管理员直接完成（任意状态可用，与正常bump区分记录）
func ForceComplete(e *models.RoutingEntry, now time.Time) models.EntryPatch {
	forced := true
	patch := models.EntryPatch{
		CompletedAt:    &now,
		ForceCompleted: &forced,
	}
	if e.StartedAt == nil {
		patch.StartedAt = &now
	}
	return patch
}

// Recall 召回：READY -> PREPARING
// 清空 completed_at，started_at 重置为召回时刻（耗时重新起算），召回计数 +1
func Recall(e *models.RoutingEntry, now time.Time) (models.EntryPatch, error) {
	if StateOf(e) != StateReady {
		return models.EntryPatch{}, fmt.Errorf("recall entry %s in state %s: %w", e.ID, StateOf(e), ErrInvalidTransition)
	}
	count := e.RecallCount + 1
	return models.EntryPatch{
		ClearCompleted: true,
		StartedAt:      &now,
		RecallCount:    &count,
	}, nil
}

// Tracker 单条目耗时/紧急度推导
// 派生值是墙钟时间的纯函数，按固定节奏重算，绝不跨tick缓存
type Tracker struct {
	catalog *catalog.Catalog
}

// NewTracker 创建推导器
func NewTracker(cat *catalog.Catalog) *Tracker {
	return &Tracker{catalog: cat}
}

// ElapsedSeconds 条目已耗时（秒）：now - (started_at ?? routed_at)
func ElapsedSeconds(e *models.RoutingEntry, now time.Time) int64 {
	ref := e.RoutedAt
	if e.StartedAt != nil {
		ref = *e.StartedAt
	}
	secs := int64(now.Sub(ref) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// UrgencyFor 按已耗时推导紧急度颜色
func UrgencyFor(elapsedSecs int64) models.Urgency {
	switch {
	case elapsedSecs <= urgencyGreenMax:
		return models.UrgencyGreen
	case elapsedSecs <= urgencyYellowMax:
		return models.UrgencyYellow
	default:
		return models.UrgencyRed
	}
}

// Derive 计算条目的显示视图（单个 now 快照）
func (t *Tracker) Derive(e *models.RoutingEntry, now time.Time) models.EntryView {
	elapsed := ElapsedSeconds(e, now)

	threshold := catalog.DefaultOverdueSecs
	if e.Station != nil {
		threshold = t.catalog.OverdueThreshold(e.Station.Type)
	}

	return models.EntryView{
		Entry:          e,
		ElapsedSeconds: elapsed,
		Urgency:        UrgencyFor(elapsed),
		IsOverdue:      elapsed > threshold,
		DisplayLabel:   DisplayLabel(e),
	}
}

// DisplayLabel 显示标签 "T{桌号}-S{座位号}"（无座位时只有桌号）
func DisplayLabel(e *models.RoutingEntry) string {
	if e.Order == nil {
		return ""
	}
	label := "T" + e.Order.TableLabel
	if e.Order.SeatLabel != "" {
		label += "-S" + e.Order.SeatLabel
	}
	return label
}
