package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"lobby/internal/cache"
	"lobby/internal/db"
	"lobby/internal/model"
)

// memStore is an in-memory db.OrderStore with sequential ids.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]model.Order

	createFn func(ctx context.Context, name string, createdAt time.Time) (model.Order, error)
	listFn   func(ctx context.Context) ([]model.Order, error)
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[int64]model.Order)}
}

func (m *memStore) Create(ctx context.Context, name string, createdAt time.Time) (model.Order, error) {
	if m.createFn != nil {
		return m.createFn(ctx, name, createdAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ord := model.NewOrder(m.nextID, name, createdAt)
	m.orders[ord.ID] = ord
	return ord, nil
}

func (m *memStore) Get(_ context.Context, id int64) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	if !ok {
		return model.Order{}, db.ErrNotFound
	}
	return ord, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, status model.Status, updatedAt time.Time) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	if !ok {
		return model.Order{}, db.ErrNotFound
	}
	ord.Status = status
	ord.UpdatedAt = updatedAt.UTC()
	m.orders[id] = ord
	return ord, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memStore) List(ctx context.Context) ([]model.Order, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListByStatus(ctx context.Context, status model.Status) ([]model.Order, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return model.FilterByStatus(all, status), nil
}

func (m *memStore) Close() {}

// recordingPublisher keeps every published list.
type recordingPublisher struct {
	mu       sync.Mutex
	lists    [][]model.Order
	versions []uint64
}

func (p *recordingPublisher) Publish(version uint64, orders []model.Order) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists = append(p.lists, orders)
	p.versions = append(p.versions, version)
	return 1
}

func (p *recordingPublisher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lists)
}

func (p *recordingPublisher) last() []model.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lists) == 0 {
		return nil
	}
	return p.lists[len(p.lists)-1]
}

// failingCache wraps a real store and fails every Save.
type failingCache struct {
	*cache.Store
}

func (f failingCache) Save(cache.Key, any) error {
	return errors.New("disk full")
}

type fixture struct {
	svc   *OrderService
	store *memStore
	cache *cache.Store
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("cache.NewStore failed: %v", err)
	}
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := NewOrderService(store, c, pub, nil, nil)
	svc.zone = time.UTC

	clock := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return &fixture{svc: svc, store: store, cache: c, pub: pub}
}

func (f *fixture) cachedOrders(t *testing.T) []model.Order {
	t.Helper()
	raw, ok := f.cache.Load(cache.KeyOrders)
	if !ok {
		t.Fatal("Expected orders cache to exist")
	}
	var orders []model.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		t.Fatalf("Cached orders are not canonical: %v", err)
	}
	return orders
}

func (f *fixture) create(t *testing.T, name string) model.Order {
	t.Helper()
	ord, err := f.svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: name})
	if err != nil {
		t.Fatalf("CreateOrder(%q) failed: %v", name, err)
	}
	return ord
}
