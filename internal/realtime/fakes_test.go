package realtime_test

import (
	"context"
	"errors"
	"sync"

	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/models"
	"github.com/mikeyoung304/plate-order-system-lean-sub009/internal/realtime"
)

// fakeStore 仅用于单元测试（内存存储）
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*models.RoutingEntry

	fetchErr   error
	updateErr  error
	fetchCount int
	fetchGate  chan struct{} // 非nil时fetch阻塞等待放行（模拟慢请求）
}

func newFakeStore(entries ...*models.RoutingEntry) *fakeStore {
	s := &fakeStore{entries: make(map[string]*models.RoutingEntry)}
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return s
}

func (s *fakeStore) InsertRoutingEntries(ctx context.Context, entries []*models.RoutingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ID] = e
	}
	return nil
}

func (s *fakeStore) UpdateRoutingEntry(ctx context.Context, id string, patch models.EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	e, ok := s.entries[id]
	if !ok {
		return errors.New("entry not found")
	}
	s.entries[id] = patch.ApplyTo(e)
	return nil
}

func (s *fakeStore) FetchActiveRoutingEntries(ctx context.Context, stationID string) ([]*models.RoutingEntry, error) {
	s.mu.Lock()
	gate := s.fetchGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCount++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	var out []*models.RoutingEntry
	for _, e := range s.entries {
		if e.CompletedAt != nil {
			continue
		}
		if stationID != "" && e.StationID != stationID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *fakeStore) setFetchErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr = err
}

func (s *fakeStore) setUpdateErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateErr = err
}

func (s *fakeStore) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCount
}

// fakeBus 仅用于单元测试的事件总线
type fakeBus struct {
	mu            sync.Mutex
	subscribeErr  error
	subscribeHits int
	subs          []*fakeSubscription
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) Subscribe(ctx context.Context, collections ...string) (realtime.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribeHits++
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	sub := &fakeSubscription{ch: make(chan models.ChangeEvent, 16)}
	b.subs = append(b.subs, sub)
	return sub, nil
}

func (b *fakeBus) emit(ev models.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.ch <- ev
	}
}

func (b *fakeBus) attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeHits
}

type fakeSubscription struct {
	once sync.Once
	ch   chan models.ChangeEvent
}

func (s *fakeSubscription) Events() <-chan models.ChangeEvent { return s.ch }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}
