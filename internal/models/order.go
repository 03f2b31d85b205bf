package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OrderKind 订单类型
type OrderKind string

const (
	OrderKindFood     OrderKind = "food"
	OrderKindBeverage OrderKind = "beverage"
)

// Item 订单行项目（规范化后的结构）
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Notes    *string `json:"notes,omitempty"`
	Station  *string `json:"station,omitempty"`
}

// Order 订单（由点餐流程创建，路由后只有状态和备注可变）
type Order struct {
	ID         string    `json:"id"`
	Items      []Item    `json:"items"`
	Kind       OrderKind `json:"kind"` // "food" 或 "beverage"
	TableID    *string   `json:"table_id,omitempty"`
	TableLabel string    `json:"table_label,omitempty"`
	SeatID     *string   `json:"seat_id,omitempty"`
	SeatLabel  string    `json:"seat_label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
}

// NormalizeItems 规范化原始items载荷
// 上游（点餐流程）的 items 可能是字符串数组，也可能是对象数组：
//   - "Cheeseburger"
//   - {"name": "Cheeseburger", "quantity": 2, "notes": "no onion"}
// 统一在存储边界转换为 Item，路由器和聚合器不再对运行时类型分支
func NormalizeItems(raw json.RawMessage) ([]Item, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var rawItems []interface{}
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}

	items := make([]Item, 0, len(rawItems))
	for i, ri := range rawItems {
		switch v := ri.(type) {
		case string:
			// 格式：["Cheeseburger", "Fries", ...]
			name := strings.TrimSpace(v)
			if name == "" {
				continue
			}
			items = append(items, Item{Name: name, Quantity: 1})
		case map[string]interface{}:
			// 格式：[{"name": "...", "quantity": 2, ...}, ...]
			item := Item{Quantity: 1}
			if name, ok := v["name"].(string); ok {
				item.Name = strings.TrimSpace(name)
			}
			if item.Name == "" {
				return nil, fmt.Errorf("item %d: missing name", i)
			}
			if qty, ok := v["quantity"].(float64); ok && qty > 0 {
				item.Quantity = int(qty)
			}
			if notes, ok := v["notes"].(string); ok && notes != "" {
				item.Notes = &notes
			}
			if station, ok := v["station"].(string); ok && station != "" {
				item.Station = &station
			}
			items = append(items, item)
		default:
			return nil, fmt.Errorf("item %d: unexpected type %T", i, ri)
		}
	}

	return items, nil
}
