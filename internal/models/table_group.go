package models

// TableStatus 桌台聚合状态
type TableStatus string

const (
	TableStatusNew       TableStatus = "new"
	TableStatusPreparing TableStatus = "preparing"
	TableStatusMixed     TableStatus = "mixed"
	TableStatusReady     TableStatus = "ready"
)

// TableGroup 桌台分组（纯投影，不持久化，每次相关变更时重算）
type TableGroup struct {
	TableID        string          `json:"table_id"`
	TableLabel     string          `json:"table_label"`
	Entries        []*RoutingEntry `json:"entries"`
	ItemCount      int             `json:"item_count"`
	SeatCount      int             `json:"seat_count"`
	OverallStatus  TableStatus     `json:"overall_status"`
	IsOverdue      bool            `json:"is_overdue"`
	MaxElapsedSecs int64           `json:"max_elapsed_seconds"`
	MaxPriority    int             `json:"max_priority"`
	HasRecall      bool            `json:"has_recall"`
	RecallCount    int             `json:"recall_count"`
}

// Urgency 紧急程度颜色
type Urgency string

const (
	UrgencyGreen  Urgency = "green"
	UrgencyYellow Urgency = "yellow"
	UrgencyRed    Urgency = "red"
)

// EntryView 单个路由条目的显示视图（按工位的平铺列表）
type EntryView struct {
	Entry          *RoutingEntry `json:"entry"`
	ElapsedSeconds int64         `json:"elapsed_seconds"`
	Urgency        Urgency       `json:"urgency"`
	IsOverdue      bool          `json:"is_overdue"`
	DisplayLabel   string        `json:"display_label"` // "T{桌号}-S{座位号}"
}
