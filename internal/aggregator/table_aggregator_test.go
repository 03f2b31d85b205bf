package aggregator_test

import (
	"testing"
	"time"

	agg "github.com/mikeyoung304/plate-order-system-lean-sub009/internal/aggregator"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/catalog"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/lifecycle"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"github.com/stretchr/testify/require"
)

func newAggregator() *agg.TableAggregator {
	return agg.NewTableAggregator(lifecycle.NewTracker(catalog.Default()))
}

func tableEntry(id, tableID string, routedAt time.Time) *models.RoutingEntry {
	tid := tableID
	return &models.RoutingEntry{
		ID:       id,
		OrderID:  "order-" + id,
		RoutedAt: routedAt,
		Priority: 1,
		Order: &models.Order{
			ID:         "order-" + id,
			TableID:    &tid,
			TableLabel: tableID,
			Items:      []models.Item{{Name: "Item", Quantity: 1}},
		},
	}
}

func TestGroup_MixedStatus(t *testing.T) {
	// 3条：2新1备餐中 -> mixed
	now := time.Now()
	e1 := tableEntry("e1", "t1", now.Add(-3*time.Minute))
	e2 := tableEntry("e2", "t1", now.Add(-2*time.Minute))
	e3 := tableEntry("e3", "t1", now.Add(-1*time.Minute))
	started := now.Add(-time.Minute)
	e3.StartedAt = &started

	groups := newAggregator().Group([]*models.RoutingEntry{e1, e2, e3}, now)
	require.Len(t, groups, 1)
	require.Equal(t, models.TableStatusMixed, groups[0].OverallStatus)
}

func TestGroup_ReadyIffAllCompleted(t *testing.T) {
	now := time.Now()
	started := now.Add(-10 * time.Minute)
	completed := now.Add(-time.Minute)

	e1 := tableEntry("e1", "t1", now.Add(-11*time.Minute))
	e1.StartedAt = &started
	e1.CompletedAt = &completed
	e2 := tableEntry("e2", "t1", now.Add(-11*time.Minute))
	e2.StartedAt = &started
	e2.CompletedAt = &completed

	a := newAggregator()

	groups := a.Group([]*models.RoutingEntry{e1, e2}, now)
	require.Len(t, groups, 1)
	require.Equal(t, models.TableStatusReady, groups[0].OverallStatus)

	// 其中一条召回后该桌不再是ready
	patch, err := lifecycle.Recall(e2, now)
	require.NoError(t, err)
	recalled := patch.ApplyTo(e2)

	groups = a.Group([]*models.RoutingEntry{e1, recalled}, now)
	require.Len(t, groups, 1)
	require.NotEqual(t, models.TableStatusReady, groups[0].OverallStatus)
	require.True(t, groups[0].HasRecall)
	require.Equal(t, 1, groups[0].RecallCount)
}

func TestGroup_AllStartedIsPreparing(t *testing.T) {
	now := time.Now()
	started := now.Add(-time.Minute)

	e1 := tableEntry("e1", "t1", now.Add(-2*time.Minute))
	e1.StartedAt = &started
	e2 := tableEntry("e2", "t1", now.Add(-2*time.Minute))
	e2.StartedAt = &started

	groups := newAggregator().Group([]*models.RoutingEntry{e1, e2}, now)
	require.Len(t, groups, 1)
	require.Equal(t, models.TableStatusPreparing, groups[0].OverallStatus)
}

func TestGroup_AllNewIsNew(t *testing.T) {
	now := time.Now()
	groups := newAggregator().Group([]*models.RoutingEntry{
		tableEntry("e1", "t1", now.Add(-time.Minute)),
		tableEntry("e2", "t1", now.Add(-time.Minute)),
	}, now)
	require.Len(t, groups, 1)
	require.Equal(t, models.TableStatusNew, groups[0].OverallStatus)
}

func TestGroup_DropsTablelessEntries(t *testing.T) {
	// 没有桌台引用的条目不出现在桌台视图
	now := time.Now()
	orphan := &models.RoutingEntry{
		ID:       "orphan",
		RoutedAt: now,
		Order:    &models.Order{ID: "o-orphan"},
	}

	groups := newAggregator().Group([]*models.RoutingEntry{
		orphan,
		tableEntry("e1", "t1", now),
	}, now)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Entries, 1)
	require.Equal(t, "e1", groups[0].Entries[0].ID)
}

func TestGroup_SortedByEarliestRoutedAt(t *testing.T) {
	now := time.Now()
	groups := newAggregator().Group([]*models.RoutingEntry{
		tableEntry("late", "t2", now.Add(-time.Minute)),
		tableEntry("early", "t1", now.Add(-10*time.Minute)),
		tableEntry("late2", "t2", now.Add(-5*time.Minute)),
	}, now)

	require.Len(t, groups, 2)
	require.Equal(t, "t1", groups[0].TableID) // 最早条目在 -10min
	require.Equal(t, "t2", groups[1].TableID)
	// 组内条目按 routed_at 升序
	require.Equal(t, "late2", groups[1].Entries[0].ID)
	require.Equal(t, "late", groups[1].Entries[1].ID)
}

func TestGroup_Idempotent(t *testing.T) {
	// 对分组结果的条目再次分组得到相同的分组
	now := time.Now()
	entries := []*models.RoutingEntry{
		tableEntry("e1", "t1", now.Add(-3*time.Minute)),
		tableEntry("e2", "t2", now.Add(-2*time.Minute)),
		tableEntry("e3", "t1", now.Add(-1*time.Minute)),
	}

	a := newAggregator()
	first := a.Group(entries, now)

	var flattened []*models.RoutingEntry
	for _, g := range first {
		flattened = append(flattened, g.Entries...)
	}
	second := a.Group(flattened, now)

	require.Equal(t, first, second)
}

func TestGroup_CountsAndAggregates(t *testing.T) {
	now := time.Now()
	seat1, seat2 := "s1", "s2"

	e1 := tableEntry("e1", "t1", now.Add(-700*time.Second))
	e1.Order.SeatID = &seat1
	e1.Order.Items = []models.Item{{Name: "Burger", Quantity: 1}, {Name: "Fries", Quantity: 1}}
	e1.Priority = 2

	e2 := tableEntry("e2", "t1", now.Add(-100*time.Second))
	e2.Order.SeatID = &seat2

	e3 := tableEntry("e3", "t1", now.Add(-50*time.Second))
	e3.Order.SeatID = &seat2 // 重复座位只计一次

	groups := newAggregator().Group([]*models.RoutingEntry{e1, e2, e3}, now)
	require.Len(t, groups, 1)

	g := groups[0]
	require.Equal(t, 4, g.ItemCount)
	require.Equal(t, 2, g.SeatCount)
	require.Equal(t, int64(700), g.MaxElapsedSecs)
	require.Equal(t, 2, g.MaxPriority)
	require.True(t, g.IsOverdue)
}

func TestStationView_FiltersAndSorts(t *testing.T) {
	now := time.Now()

	e1 := tableEntry("e1", "t1", now.Add(-time.Minute))
	e1.StationID = "grill-1"
	e1.Priority = 1
	e2 := tableEntry("e2", "t1", now.Add(-2*time.Minute))
	e2.StationID = "grill-1"
	e2.Priority = 2
	e3 := tableEntry("e3", "t1", now.Add(-time.Minute))
	e3.StationID = "fryer-1"

	views := newAggregator().StationView([]*models.RoutingEntry{e1, e2, e3}, "grill-1", now)
	require.Len(t, views, 2)
	// 高优先级在前
	require.Equal(t, "e2", views[0].Entry.ID)
	require.Equal(t, "e1", views[1].Entry.ID)
}
