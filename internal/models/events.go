package models

import "encoding/json"

// 事件总线上的集合名
const (
	CollectionRouting = "routing"
	CollectionOrders  = "orders"
)

// 变更事件类型
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// ChangeEvent 存储变更通知
// 引擎不假设事件的顺序和送达保证；事件载荷不含联表数据，
// 收到事件后统一走全量 fetch 重建一致快照
type ChangeEvent struct {
	Collection string          `json:"collection"`
	EventType  string          `json:"event_type"` // insert/update/delete
	EntityID   string          `json:"entity_id"`
	NewValue   json.RawMessage `json:"new_value,omitempty"`
	OldValue   json.RawMessage `json:"old_value,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}
