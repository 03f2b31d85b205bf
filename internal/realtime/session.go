package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/lifecycle"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"

	"go.uber.org/zap"
)

// ConnState 连接状态
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateReconnecting ConnState = "reconnecting"
	StateConnected    ConnState = "connected"
)

// Options 会话参数
type Options struct {
	// StationID 非空时会话只跟踪单个工位的条目
	StationID string

	// FetchTimeout 单次快照拉取的超时，超时按 ErrFetchFailed 处理
	FetchTimeout time.Duration

	// PollInterval 轮询兜底间隔：连接不在 CONNECTED 状态时按此间隔强制拉取，
	// 保证推送通道坏掉时依然最终一致
	PollInterval time.Duration

	Backoff Backoff
}

func (o *Options) applyDefaults() {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.Backoff.Initial <= 0 {
		o.Backoff = DefaultBackoff()
	}
}

// Session 单个显示屏的实时同步会话
// 每个会话独占：条目缓存、乐观补丁集、连接状态机、重试定时器
// 会话之间绝不共享内存，跨会话一致性只经由共享的存储与事件总线
type Session struct {
	store  Store
	bus    EventBus
	logger *zap.Logger
	opts   Options

	mu         sync.Mutex
	cache      map[string]*models.RoutingEntry
	order      []string // 缓存内条目的拉取顺序
	patches    map[string]models.EntryPatch
	connState  ConnState
	generation uint64 // Close 时递增，在途 fetch 返回后据此丢弃结果
	closed     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession 创建同步会话
func NewSession(store Store, bus EventBus, logger *zap.Logger, opts Options) *Session {
	opts.applyDefaults()
	return &Session{
		store:     store,
		bus:       bus,
		logger:    logger,
		opts:      opts,
		cache:     make(map[string]*models.RoutingEntry),
		patches:   make(map[string]models.EntryPatch),
		connState: StateDisconnected,
		done:      make(chan struct{}),
	}
}

// ConnState 当前连接状态
func (s *Session) ConnState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// Entries 当前缓存快照（已叠加未确认的乐观补丁，按拉取顺序）
func (s *Session) Entries() []*models.RoutingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*models.RoutingEntry, 0, len(s.order))
	for _, id := range s.order {
		entry, ok := s.cache[id]
		if !ok {
			continue
		}
		if patch, ok := s.patches[id]; ok {
			entry = patch.ApplyTo(entry)
		}
		entries = append(entries, entry)
	}
	return entries
}

// Entry 按ID取单个条目（叠加乐观补丁）
func (s *Session) Entry(id string) (*models.RoutingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache[id]
	if !ok {
		return nil, false
	}
	if patch, ok := s.patches[id]; ok {
		return patch.ApplyTo(entry), true
	}
	return entry.Clone(), true
}

// PendingPatchCount 未确认的乐观补丁数
func (s *Session) PendingPatchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.patches)
}

// Fetch 从存储拉取全量快照
// 失败时返回 ErrFetchFailed 且保留旧缓存（过期可用优于清空）
func (s *Session) Fetch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	gen := s.generation
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	entries, err := s.store.FetchActiveRoutingEntries(fetchCtx, s.opts.StationID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 会话在 fetch 在途时被关闭：丢弃结果，不再触碰缓存
	if s.closed || s.generation != gen {
		return ErrSessionClosed
	}

	cache := make(map[string]*models.RoutingEntry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		cache[e.ID] = e
		order = append(order, e.ID)
	}
	s.cache = cache
	s.order = order

	// 已经不在快照里的条目，其乐观补丁没有意义了
	for id := range s.patches {
		if _, ok := cache[id]; !ok {
			delete(s.patches, id)
		}
	}

	s.logger.Debug("Fetched routing snapshot",
		zap.Int("entry_count", len(entries)),
		zap.String("station_id", s.opts.StationID),
	)

	return nil
}

// ApplyOptimistic 立即在本地缓存上应用补丁（服务端确认到达前）
// 用于让 bump/召回 等操作在界面上即时生效
func (s *Session) ApplyOptimistic(entryID string, patch models.EntryPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.patches[entryID]; ok {
		patch = mergePatch(existing, patch)
	}
	s.patches[entryID] = patch
}

// RevertOptimistic 丢弃未确认的补丁并强制重新拉取
// 用于操作最终在服务端失败的场合
func (s *Session) RevertOptimistic(ctx context.Context, entryID string) error {
	s.mu.Lock()
	delete(s.patches, entryID)
	s.mu.Unlock()

	return s.Fetch(ctx)
}

// OnEvent 处理一条总线通知
// 匹配的乐观补丁直接清除（权威更新取代本地猜测），然后全量重拉快照。
// 刻意不从事件载荷打补丁：原始变更事件不含桌台/座位/工位联表数据
func (s *Session) OnEvent(ctx context.Context, ev models.ChangeEvent) error {
	if ev.Collection != models.CollectionRouting && ev.Collection != models.CollectionOrders {
		return nil
	}

	s.mu.Lock()
	delete(s.patches, ev.EntityID)
	s.mu.Unlock()

	return s.Fetch(ctx)
}

// Execute 执行显示屏命令：乐观应用 -> 发存储 -> 失败则回滚重拉
func (s *Session) Execute(ctx context.Context, cmd Command) error {
	s.ApplyOptimistic(cmd.EntryID, cmd.Patch)

	if err := s.store.UpdateRoutingEntry(ctx, cmd.EntryID, cmd.Patch); err != nil {
		s.logger.Warn("Command rejected by store, reverting optimistic patch",
			zap.String("action", string(cmd.Action)),
			zap.String("entry_id", cmd.EntryID),
			zap.Error(err),
		)
		if revertErr := s.RevertOptimistic(ctx, cmd.EntryID); revertErr != nil {
			s.logger.Error("Failed to refetch after revert", zap.Error(revertErr))
		}
		return fmt.Errorf("%w: %s %s: %v", ErrOptimisticConflict, cmd.Action, cmd.EntryID, err)
	}

	return nil
}

// Start 开工命令
func (s *Session) Start(ctx context.Context, entryID string) error {
	return s.transition(ctx, ActionStart, entryID)
}

// Bump 出品命令
func (s *Session) Bump(ctx context.Context, entryID string) error {
	return s.transition(ctx, ActionBump, entryID)
}

// Recall 召回命令
func (s *Session) Recall(ctx context.Context, entryID string) error {
	return s.transition(ctx, ActionRecall, entryID)
}

// ForceComplete 管理员直接完成命令
func (s *Session) ForceComplete(ctx context.Context, entryID string) error {
	return s.transition(ctx, ActionForceComplete, entryID)
}

// transition 基于缓存中的当前状态推导补丁并执行
func (s *Session) transition(ctx context.Context, action Action, entryID string) error {
	entry, ok := s.Entry(entryID)
	if !ok {
		return fmt.Errorf("entry %s not in session cache", entryID)
	}

	now := time.Now()
	var (
		patch models.EntryPatch
		err   error
	)
	switch action {
	case ActionStart:
		patch, err = lifecycle.Start(entry, now)
	case ActionBump:
		patch, err = lifecycle.Bump(entry, now)
	case ActionRecall:
		patch, err = lifecycle.Recall(entry, now)
	case ActionForceComplete:
		patch = lifecycle.ForceComplete(entry, now)
	default:
		return fmt.Errorf("unknown action: %s", action)
	}
	if err != nil {
		return err
	}

	return s.Execute(ctx, Command{Action: action, EntryID: entryID, Patch: patch})
}

// Run 运行连接生命周期（阻塞直到 ctx 取消、Close 或重连超限）
// 状态机：DISCONNECTED -> RECONNECTING -> CONNECTED
// 订阅失败按指数退避重试，超过次数上限后返回 ErrConnectionLost
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrSessionClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	// 轮询兜底：连接不健康时依然周期性拉取
	go s.pollLoop(runCtx)

	attempt := 0
	for {
		sub, err := s.bus.Subscribe(runCtx, models.CollectionRouting, models.CollectionOrders)
		if err != nil {
			s.setConnState(StateReconnecting)

			if attempt >= s.opts.Backoff.MaxAttempts {
				s.setConnState(StateDisconnected)
				s.logger.Error("Giving up reconnecting",
					zap.Int("attempts", attempt),
					zap.Error(err),
				)
				return fmt.Errorf("%w: %v", ErrConnectionLost, err)
			}

			delay := s.opts.Backoff.Delay(attempt)
			s.logger.Warn("Subscribe failed, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			attempt++

			select {
			case <-runCtx.Done():
				s.setConnState(StateDisconnected)
				return nil
			case <-time.After(delay):
			}
			continue
		}

		// 订阅成功
		attempt = 0
		s.setConnState(StateConnected)

		// 订阅建立后先拉一次，补齐断连期间错过的变更
		if err := s.Fetch(runCtx); err != nil {
			s.logger.Warn("Initial fetch after connect failed", zap.Error(err))
		}

		s.consume(runCtx, sub)
		_ = sub.Close()

		select {
		case <-runCtx.Done():
			s.setConnState(StateDisconnected)
			return nil
		default:
			// 事件通道被对端关闭，走重连
			s.setConnState(StateReconnecting)
			s.logger.Warn("Event channel closed, reconnecting")
		}
	}
}

// consume 消费事件直到通道关闭或 ctx 取消
func (s *Session) consume(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.OnEvent(ctx, ev); err != nil {
				if err == ErrSessionClosed {
					return
				}
				// 瞬时拉取失败：记录后继续，轮询兜底会补上
				s.logger.Warn("Failed to reconcile after event",
					zap.String("collection", ev.Collection),
					zap.String("entity_id", ev.EntityID),
					zap.Error(err),
				)
			}
		}
	}
}

// pollLoop 轮询兜底循环
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.ConnState() == StateConnected {
				continue
			}
			if err := s.Fetch(ctx); err != nil && err != ErrSessionClosed {
				s.logger.Warn("Polling fallback fetch failed", zap.Error(err))
			}
		}
	}
}

// Close 关闭会话：取消订阅、停掉定时器，在途 fetch 的结果被丢弃
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	s.connState = StateDisconnected
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	}
}

func (s *Session) setConnState(state ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.connState = state
	}
}

// mergePatch 合并两个乐观补丁（后者覆盖前者）
func mergePatch(old, next models.EntryPatch) models.EntryPatch {
	merged := old
	if next.ClearStarted {
		merged.ClearStarted = true
		merged.StartedAt = nil
	} else if next.StartedAt != nil {
		merged.StartedAt = next.StartedAt
		merged.ClearStarted = false
	}
	if next.ClearCompleted {
		merged.ClearCompleted = true
		merged.CompletedAt = nil
	} else if next.CompletedAt != nil {
		merged.CompletedAt = next.CompletedAt
		merged.ClearCompleted = false
	}
	if next.RecallCount != nil {
		merged.RecallCount = next.RecallCount
	}
	if next.ForceCompleted != nil {
		merged.ForceCompleted = next.ForceCompleted
	}
	return merged
}
