package models

import "time"

// RoutingEntry 路由条目：一个订单分配到一个工位的记录
// 不变量：每个 (Order, Station) 组合在路由时恰好产生一条记录
// 完成的条目不删除，只标记 completed_at（保留历史便于追溯）
type RoutingEntry struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	StationID      string     `json:"station_id"`
	Sequence       int        `json:"sequence"` // 同一订单内工位的顺序
	Priority       int        `json:"priority"` // 数值越大越紧急
	RoutedAt       time.Time  `json:"routed_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RecallCount    int        `json:"recall_count"`
	ForceCompleted bool       `json:"force_completed"` // 管理员直接完成（区别于正常bump）

	// 关联数据（fetch 时从存储联表带出，原始变更事件里没有）
	Order   *Order   `json:"order,omitempty"`
	Station *Station `json:"station,omitempty"`
}

// Clone 深拷贝路由条目（乐观更新时避免污染缓存中的原始对象）
func (e *RoutingEntry) Clone() *RoutingEntry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.StartedAt != nil {
		t := *e.StartedAt
		cp.StartedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	if e.Order != nil {
		o := *e.Order
		o.Items = append([]Item(nil), e.Order.Items...)
		cp.Order = &o
	}
	if e.Station != nil {
		s := *e.Station
		cp.Station = &s
	}
	return &cp
}

// EntryPatch 路由条目的部分更新
// 同时用作乐观补丁的载荷和存储层 UPDATE 的载荷
// 指针为 nil 表示不修改该字段；Clear* 为显式清空
type EntryPatch struct {
	StartedAt      *time.Time
	ClearStarted   bool
	CompletedAt    *time.Time
	ClearCompleted bool
	RecallCount    *int
	ForceCompleted *bool
}

// IsZero 判断补丁是否为空
func (p EntryPatch) IsZero() bool {
	return p.StartedAt == nil && !p.ClearStarted &&
		p.CompletedAt == nil && !p.ClearCompleted &&
		p.RecallCount == nil && p.ForceCompleted == nil
}

// ApplyTo 将补丁应用到条目副本上并返回
func (p EntryPatch) ApplyTo(e *RoutingEntry) *RoutingEntry {
	cp := e.Clone()
	if p.ClearStarted {
		cp.StartedAt = nil
	} else if p.StartedAt != nil {
		t := *p.StartedAt
		cp.StartedAt = &t
	}
	if p.ClearCompleted {
		cp.CompletedAt = nil
	} else if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	if p.RecallCount != nil {
		cp.RecallCount = *p.RecallCount
	}
	if p.ForceCompleted != nil {
		cp.ForceCompleted = *p.ForceCompleted
	}
	return cp
}
