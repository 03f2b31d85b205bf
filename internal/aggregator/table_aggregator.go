package aggregator

import (
	"sort"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/lifecycle"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
)

// TableAggregator 桌台聚合器
// Group 是确定性的纯函数：同样的输入和now必然得到同样的分组
type TableAggregator struct {
	tracker *lifecycle.Tracker
}

// NewTableAggregator 创建桌台聚合器
func NewTableAggregator(tracker *lifecycle.Tracker) *TableAggregator {
	return &TableAggregator{tracker: tracker}
}

// Group 按桌台分组路由条目
// 没有桌台引用的条目直接丢弃（订单必须属于某桌才会出现在桌台视图）
// 同一次聚合的所有条目使用同一个 now 快照，避免一次重算内紧急度不一致
// 分组按组内最早 routed_at 升序排列
func (a *TableAggregator) Group(entries []*models.RoutingEntry, now time.Time) []models.TableGroup {
	byTable := make(map[string][]*models.RoutingEntry)
	for _, e := range entries {
		if e.Order == nil || e.Order.TableID == nil || *e.Order.TableID == "" {
			continue
		}
		tableID := *e.Order.TableID
		byTable[tableID] = append(byTable[tableID], e)
	}

	groups := make([]models.TableGroup, 0, len(byTable))
	for tableID, tableEntries := range byTable {
		sort.SliceStable(tableEntries, func(i, j int) bool {
			return tableEntries[i].RoutedAt.Before(tableEntries[j].RoutedAt)
		})
		groups = append(groups, a.buildGroup(tableID, tableEntries, now))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Entries[0].RoutedAt.Before(groups[j].Entries[0].RoutedAt)
	})

	return groups
}

// buildGroup 计算单个桌台的聚合值
func (a *TableAggregator) buildGroup(tableID string, entries []*models.RoutingEntry, now time.Time) models.TableGroup {
	group := models.TableGroup{
		TableID: tableID,
		Entries: entries,
	}

	seats := make(map[string]struct{})
	allReady := true
	anyNew := false
	anyStartedOrReady := false

	for _, e := range entries {
		if group.TableLabel == "" && e.Order != nil {
			group.TableLabel = e.Order.TableLabel
		}
		if e.Order != nil {
			group.ItemCount += len(e.Order.Items)
			if e.Order.SeatID != nil && *e.Order.SeatID != "" {
				seats[*e.Order.SeatID] = struct{}{}
			}
		}

		switch lifecycle.StateOf(e) {
		case lifecycle.StateReady:
			anyStartedOrReady = true
		case lifecycle.StatePreparing:
			allReady = false
			anyStartedOrReady = true
		default:
			allReady = false
			anyNew = true
		}

		view := a.tracker.Derive(e, now)
		if view.ElapsedSeconds > group.MaxElapsedSecs {
			group.MaxElapsedSecs = view.ElapsedSeconds
		}
		if view.IsOverdue {
			group.IsOverdue = true
		}
		if e.Priority > group.MaxPriority {
			group.MaxPriority = e.Priority
		}
		if e.RecallCount > 0 {
			group.HasRecall = true
			group.RecallCount += e.RecallCount
		}
	}

	group.SeatCount = len(seats)

	switch {
	case allReady:
		group.OverallStatus = models.TableStatusReady
	case !anyNew:
		group.OverallStatus = models.TableStatusPreparing
	case anyStartedOrReady:
		group.OverallStatus = models.TableStatusMixed
	default:
		group.OverallStatus = models.TableStatusNew
	}

	return group
}

// StationView 计算单个工位的平铺显示视图（按优先级降序、routed_at升序）
func (a *TableAggregator) StationView(entries []*models.RoutingEntry, stationID string, now time.Time) []models.EntryView {
	var views []models.EntryView
	for _, e := range entries {
		if stationID != "" && e.StationID != stationID {
			continue
		}
		views = append(views, a.tracker.Derive(e, now))
	}

	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Entry.Priority != views[j].Entry.Priority {
			return views[i].Entry.Priority > views[j].Entry.Priority
		}
		return views[i].Entry.RoutedAt.Before(views[j].Entry.RoutedAt)
	})

	return views
}
