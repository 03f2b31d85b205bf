package realtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/realtime"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func activeEntry(id string) *models.RoutingEntry {
	tid := "t1"
	return &models.RoutingEntry{
		ID:        id,
		OrderID:   "order-" + id,
		StationID: "grill-1",
		Priority:  1,
		RoutedAt:  time.Now().Add(-time.Minute),
		Order: &models.Order{
			ID:      "order-" + id,
			TableID: &tid,
			Items:   []models.Item{{Name: "Burger", Quantity: 1}},
		},
	}
}

func newTestSession(store realtime.Store, bus realtime.EventBus) *realtime.Session {
	return realtime.NewSession(store, bus, zap.NewNop(), realtime.Options{
		FetchTimeout: time.Second,
		PollInterval: 10 * time.Millisecond,
		Backoff: realtime.Backoff{
			Initial:     time.Millisecond,
			Max:         5 * time.Millisecond,
			MaxAttempts: 3,
		},
	})
}

func TestFetch_PopulatesCache(t *testing.T) {
	store := newFakeStore(activeEntry("e1"), activeEntry("e2"))
	s := newTestSession(store, newFakeBus())

	require.NoError(t, s.Fetch(context.Background()))
	require.Len(t, s.Entries(), 2)
}

func TestFetch_FailureKeepsStaleCache(t *testing.T) {
	// 拉取失败时保留旧缓存：过期可用优于清空
	store := newFakeStore(activeEntry("e1"))
	s := newTestSession(store, newFakeBus())

	require.NoError(t, s.Fetch(context.Background()))
	require.Len(t, s.Entries(), 1)

	store.setFetchErr(errors.New("connection refused"))
	err := s.Fetch(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, realtime.ErrFetchFailed))
	require.Len(t, s.Entries(), 1, "stale cache must survive a failed fetch")
}

func TestApplyOptimistic_VisibleImmediately(t *testing.T) {
	store := newFakeStore(activeEntry("e1"))
	s := newTestSession(store, newFakeBus())
	require.NoError(t, s.Fetch(context.Background()))

	now := time.Now()
	s.ApplyOptimistic("e1", models.EntryPatch{StartedAt: &now})

	entry, ok := s.Entry("e1")
	require.True(t, ok)
	require.NotNil(t, entry.StartedAt, "optimistic patch must apply before server confirmation")
	require.Equal(t, 1, s.PendingPatchCount())
}

func TestOnEvent_AuthoritativeUpdateWins(t *testing.T) {
	// applyOptimistic 后紧跟同条目的事件：缓存以事件后的权威快照为准，不是本地猜测
	e1 := activeEntry("e1")
	store := newFakeStore(e1)
	s := newTestSession(store, newFakeBus())
	require.NoError(t, s.Fetch(context.Background()))

	// 本地猜测：已开工
	guess := time.Now()
	s.ApplyOptimistic("e1", models.EntryPatch{StartedAt: &guess})

	// 服务端权威状态：仍未开工
	err := s.OnEvent(context.Background(), models.ChangeEvent{
		Collection: models.CollectionRouting,
		EventType:  models.EventUpdate,
		EntityID:   "e1",
	})
	require.NoError(t, err)

	entry, ok := s.Entry("e1")
	require.True(t, ok)
	require.Nil(t, entry.StartedAt, "event must supersede the optimistic guess")
	require.Equal(t, 0, s.PendingPatchCount())
}

func TestOnEvent_IgnoresUnknownCollections(t *testing.T) {
	store := newFakeStore(activeEntry("e1"))
	s := newTestSession(store, newFakeBus())
	require.NoError(t, s.Fetch(context.Background()))
	before := store.fetches()

	require.NoError(t, s.OnEvent(context.Background(), models.ChangeEvent{
		Collection: "floor_plans",
		EntityID:   "x",
	}))
	require.Equal(t, before, store.fetches(), "unrelated collections must not trigger refetch")
}

func TestExecute_RevertsOnStoreFailure(t *testing.T) {
	store := newFakeStore(activeEntry("e1"))
	s := newTestSession(store, newFakeBus())
	require.NoError(t, s.Fetch(context.Background()))

	store.setUpdateErr(errors.New("conflict"))
	now := time.Now()
	err := s.Execute(context.Background(), realtime.Command{
		Action:  realtime.ActionStart,
		EntryID: "e1",
		Patch:   models.EntryPatch{StartedAt: &now},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, realtime.ErrOptimisticConflict))

	// 回滚后缓存恢复为服务端状态，补丁被丢弃
	entry, ok := s.Entry("e1")
	require.True(t, ok)
	require.Nil(t, entry.StartedAt)
	require.Equal(t, 0, s.PendingPatchCount())
}

func TestBumpThenRecall_RoundTrip(t *testing.T) {
	store := newFakeStore(activeEntry("e1"))
	s := newTestSession(store, newFakeBus())
	ctx := context.Background()
	require.NoError(t, s.Fetch(ctx))

	require.NoError(t, s.Start(ctx, "e1"))
	require.NoError(t, s.Bump(ctx, "e1"))

	// bump 后条目已完成
	entry, ok := s.Entry("e1")
	require.True(t, ok)
	require.NotNil(t, entry.CompletedAt)

	require.NoError(t, s.Recall(ctx, "e1"))
	entry, ok = s.Entry("e1")
	require.True(t, ok)
	require.Nil(t, entry.CompletedAt)
	require.Equal(t, 1, entry.RecallCount)
}

func TestRun_ReconnectsWithBackoffThenGivesUp(t *testing.T) {
	// 订阅一直失败：按退避重试，超过上限返回 ErrConnectionLost
	bus := newFakeBus()
	bus.subscribeErr = errors.New("subscribe refused")
	s := newTestSession(newFakeStore(), bus)

	err := s.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, realtime.ErrConnectionLost))
	// MaxAttempts=3：首次尝试 + 3次退避重试
	require.Equal(t, 4, bus.attempts())
	require.Equal(t, realtime.StateDisconnected, s.ConnState())
}

func TestRun_ConnectsAndConsumesEvents(t *testing.T) {
	e1 := activeEntry("e1")
	store := newFakeStore(e1)
	bus := newFakeBus()
	s := newTestSession(store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	// 等待进入 CONNECTED
	require.Eventually(t, func() bool {
		return s.ConnState() == realtime.StateConnected
	}, time.Second, time.Millisecond)

	// 通过事件总线感知新增条目
	store.InsertRoutingEntries(ctx, []*models.RoutingEntry{activeEntry("e2")})
	bus.emit(models.ChangeEvent{
		Collection: models.CollectionRouting,
		EventType:  models.EventInsert,
		EntityID:   "e2",
	})

	require.Eventually(t, func() bool {
		return len(s.Entries()) == 2
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)
}

func TestPollingFallback_FetchesWhenNotConnected(t *testing.T) {
	// 连接不上时轮询兜底保证最终一致
	store := newFakeStore(activeEntry("e1"))
	bus := newFakeBus()
	bus.subscribeErr = errors.New("push broken")
	s := realtime.NewSession(store, bus, zap.NewNop(), realtime.Options{
		FetchTimeout: time.Second,
		PollInterval: 5 * time.Millisecond,
		Backoff: realtime.Backoff{
			Initial:     20 * time.Millisecond,
			Max:         50 * time.Millisecond,
			MaxAttempts: 100,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return len(s.Entries()) == 1
	}, time.Second, time.Millisecond, "polling fallback must populate the cache without push")
}

func TestClose_DiscardsInFlightFetch(t *testing.T) {
	// Close 后在途 fetch 的结果必须被丢弃，不再触碰缓存
	store := newFakeStore(activeEntry("e1"))
	store.fetchGate = make(chan struct{})
	s := newTestSession(store, newFakeBus())

	fetchDone := make(chan error, 1)
	go func() { fetchDone <- s.Fetch(context.Background()) }()

	// fetch 挂起时关闭会话
	time.Sleep(10 * time.Millisecond)
	s.Close()
	close(store.fetchGate)

	err := <-fetchDone
	require.True(t, errors.Is(err, realtime.ErrSessionClosed))
	require.Empty(t, s.Entries())
}

func TestStationScopedSession(t *testing.T) {
	e1 := activeEntry("e1")
	e2 := activeEntry("e2")
	e2.StationID = "fryer-1"
	store := newFakeStore(e1, e2)

	s := realtime.NewSession(store, newFakeBus(), zap.NewNop(), realtime.Options{
		StationID: "fryer-1",
	})
	require.NoError(t, s.Fetch(context.Background()))

	entries := s.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "e2", entries[0].ID)
}
