package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lobby/internal/cache"
	"lobby/internal/hub"
	"lobby/internal/model"
)

func TestCreateOrder_StartsPreparing(t *testing.T) {
	f := newFixture(t)
	ord := f.create(t, "  Ana  ")

	if ord.Status != model.StatusPreparing {
		t.Errorf("Expected PREPARING, got %s", ord.Status)
	}
	if !ord.CreatedAt.Equal(ord.UpdatedAt) {
		t.Errorf("Expected createdAt == updatedAt, got %v / %v", ord.CreatedAt, ord.UpdatedAt)
	}
	if ord.CustomerName != "Ana" {
		t.Errorf("Expected trimmed name, got %q", ord.CustomerName)
	}
	if f.pub.calls() != 1 {
		t.Errorf("Expected 1 publish, got %d", f.pub.calls())
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"", "   ", "A", strings.Repeat("x", 101)} {
		_, err := f.svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: name})
		if !IsValidation(err) {
			t.Errorf("Name %q: expected ValidationError, got %v", name, err)
		}
	}
	if f.cache.Exists(cache.KeyOrders) {
		t.Error("Rejected requests must not touch the cache")
	}
	if f.pub.calls() != 0 {
		t.Errorf("Rejected requests must not publish, got %d", f.pub.calls())
	}

	// Boundaries are accepted; length counts characters, not bytes.
	for _, name := range []string{"Bo", strings.Repeat("é", 100)} {
		if _, err := f.svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: name}); err != nil {
			t.Errorf("Name of %d chars rejected: %v", len([]rune(name)), err)
		}
	}
}

func TestOrderLifecycleExample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ana := f.create(t, "Ana")
	bea := f.create(t, "Bea")
	if ana.ID != 1 || bea.ID != 2 {
		t.Fatalf("Expected ids 1 and 2, got %d and %d", ana.ID, bea.ID)
	}

	ready, err := f.svc.UpdateStatus(ctx, 1)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if ready.Status != model.StatusReady {
		t.Errorf("Expected READY, got %s", ready.Status)
	}

	list, err := f.svc.ListOrders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
		t.Fatalf("Expected order [1 2], got %v", ids(list))
	}
	if list[0].Status != model.StatusReady || list[0].UpdatedAt.Before(list[0].CreatedAt) {
		t.Errorf("Unexpected order 1 after update: %+v", list[0])
	}

	if err := f.svc.RemoveOrder(ctx, 2); err != nil {
		t.Fatalf("RemoveOrder failed: %v", err)
	}
	list, _ = f.svc.ListOrders(ctx)
	if len(list) != 1 || list[0].ID != 1 {
		t.Errorf("Expected [1], got %v", ids(list))
	}

	// Record store follows the cache.
	if ord, err := f.store.Get(ctx, 1); err != nil || ord.Status != model.StatusReady {
		t.Errorf("Record store not synced: %+v %v", ord, err)
	}
	if _, err := f.store.Get(ctx, 2); err == nil {
		t.Error("Expected order 2 to be deleted from record store")
	}
	if f.pub.calls() != 4 {
		t.Errorf("Expected 4 publishes, got %d", f.pub.calls())
	}
}

func TestUpdateStatus_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord := f.create(t, "Ana")

	for i := 0; i < 2; i++ {
		got, err := f.svc.UpdateStatus(ctx, ord.ID)
		if err != nil {
			t.Fatalf("Call %d failed: %v", i+1, err)
		}
		if got.Status != model.StatusReady {
			t.Errorf("Call %d: expected READY, got %s", i+1, got.Status)
		}
	}
	cached := f.cachedOrders(t)
	if len(cached) != 1 || cached[0].Status != model.StatusReady {
		t.Errorf("Unexpected cache %+v", cached)
	}
}

func TestUnknownIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Cold cache, empty record store.
	if _, err := f.svc.UpdateStatus(ctx, 99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Cold update: expected ErrOrderNotFound, got %v", err)
	}
	if err := f.svc.RemoveOrder(ctx, 99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Cold remove: expected ErrOrderNotFound, got %v", err)
	}

	f.create(t, "Ana")
	before := f.pub.calls()
	if _, err := f.svc.UpdateStatus(ctx, 99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Warm update: expected ErrOrderNotFound, got %v", err)
	}
	if err := f.svc.RemoveOrder(ctx, 99); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Warm remove: expected ErrOrderNotFound, got %v", err)
	}
	if f.pub.calls() != before {
		t.Error("Failed mutations must not publish")
	}
}

func TestEmptyQueueProtection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := filepath.Join(f.cache.Dir(), "orders.json")

	if _, err := f.svc.ListOrders(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ListOrdersByStatus(ctx, model.StatusReady); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Cache file must not exist before the first order: %v", err)
	}

	ord := f.create(t, "Ana")
	if err := f.svc.RemoveOrder(ctx, ord.ID); err != nil {
		t.Fatalf("RemoveOrder failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected cache file after removal: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("Expected [], got %s", data)
	}
	if last := f.pub.last(); last == nil || len(last) != 0 {
		t.Errorf("Expected an empty list to be published, got %v", last)
	}
}

func TestCreateOrder_ConcurrentNoLostUpdates(t *testing.T) {
	f := newFixture(t)
	const n = 25

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: "Guest"}); err != nil {
				t.Errorf("CreateOrder failed: %v", err)
			}
		}()
	}
	wg.Wait()

	cached := f.cachedOrders(t)
	if len(cached) != n {
		t.Fatalf("Expected %d cached orders, got %d", n, len(cached))
	}
	seen := make(map[int64]bool)
	for i, o := range cached {
		if seen[o.ID] {
			t.Errorf("Duplicate id %d", o.ID)
		}
		seen[o.ID] = true
		if i > 0 {
			prev := cached[i-1]
			if o.ID < prev.ID || o.CreatedAt.Before(prev.CreatedAt) {
				t.Errorf("Order %d out of creation order after %d", o.ID, prev.ID)
			}
		}
	}
}

func TestUpdateStatus_BroadcastOncePerSubscriber(t *testing.T) {
	c, err := cache.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	h := hub.New(hub.Options{})
	svc := NewOrderService(newMemStore(), c, h, nil, nil)
	ctx := context.Background()

	ord, err := svc.CreateOrder(ctx, model.CreateOrderRequest{CustomerName: "Ana"})
	if err != nil {
		t.Fatal(err)
	}

	a, b := h.Subscribe(), h.Subscribe()
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	if _, err := svc.UpdateStatus(ctx, ord.ID); err != nil {
		t.Fatal(err)
	}

	for _, sub := range []*hub.Subscription{a, b} {
		select {
		case ev := <-sub.Events():
			if len(ev.Payload) != 1 || ev.Payload[0].Status != model.StatusReady {
				t.Errorf("Unexpected payload %+v", ev.Payload)
			}
		case <-time.After(time.Second):
			t.Fatal("Subscriber did not receive the update")
		}
		select {
		case ev := <-sub.Events():
			t.Errorf("Unexpected second event %+v", ev)
		default:
		}
	}
}

func TestColdCacheFallsBackToRecordStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	f.store.Create(ctx, "Ana", now)
	f.store.Create(ctx, "Bea", now.Add(time.Second))

	list, err := f.svc.ListOrders(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("Expected 2 orders from record store, got %v (%v)", list, err)
	}
	if f.cache.Exists(cache.KeyOrders) {
		t.Fatal("Listing must not populate the cache")
	}

	ord, err := f.svc.UpdateStatus(ctx, 2)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if ord.Status != model.StatusReady {
		t.Errorf("Expected READY, got %s", ord.Status)
	}

	cached := f.cachedOrders(t)
	if len(cached) != 2 || cached[1].Status != model.StatusReady {
		t.Errorf("Cache not populated from snapshot: %+v", cached)
	}
	if last := f.pub.last(); len(last) != 2 {
		t.Errorf("Expected snapshot to be published, got %v", last)
	}
}

func TestColdCacheRemoveFallsBackToRecordStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ord, _ := f.store.Create(ctx, "Ana", time.Now())

	if err := f.svc.RemoveOrder(ctx, ord.ID); err != nil {
		t.Fatalf("RemoveOrder failed: %v", err)
	}
	if _, err := f.store.Get(ctx, ord.ID); err == nil {
		t.Error("Expected record to be deleted")
	}
	// The snapshot is empty and no cache existed, so nothing is written.
	if f.cache.Exists(cache.KeyOrders) {
		t.Error("Empty snapshot must not create the cache file")
	}
}

func TestCacheWriteFailureIsSwallowed(t *testing.T) {
	c, err := cache.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	svc := NewOrderService(newMemStore(), failingCache{c}, pub, nil, nil)

	ord, err := svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: "Ana"})
	if err != nil {
		t.Fatalf("Expected success despite cache failure, got %v", err)
	}
	if ord.ID != 1 {
		t.Errorf("Unexpected order %+v", ord)
	}
	if svc.CacheWriteFailures() != 1 {
		t.Errorf("Expected 1 recorded failure, got %d", svc.CacheWriteFailures())
	}
	if pub.calls() != 1 {
		t.Errorf("Expected publish after swallowed failure, got %d", pub.calls())
	}
}

func TestCreateOrder_RecordStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.createFn = func(context.Context, string, time.Time) (model.Order, error) {
		return model.Order{}, errors.New("connection refused")
	}

	if _, err := f.svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: "Ana"}); err == nil {
		t.Fatal("Expected error")
	}
	if f.cache.Exists(cache.KeyOrders) {
		t.Error("Cache must be untouched when id assignment fails")
	}
	if f.pub.calls() != 0 {
		t.Error("Failed create must not publish")
	}
}

func TestListOrdersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Ana")
	f.create(t, "Bea")
	f.create(t, "Caio")
	f.svc.UpdateStatus(ctx, 2)

	preparing, err := f.svc.ListOrdersByStatus(ctx, model.StatusPreparing)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(preparing); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Expected [1 3], got %v", got)
	}
}

func TestMutationsReconcileLegacyEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	legacy := `[
	  {"id": 1.0, "nomeCliente": "Ana", "status": "PRONTO", "dataCriacao": "2026-10-14T10:00:00", "dataAtualizacao": "2026-10-14T10:05:00"},
	  {"id": "2", "customerName": "Bea", "status": "PREPARING", "createdAt": "2026-10-14T10:01:00Z"},
	  {"id": "not-a-number", "customerName": "Broken"},
	  42
	]`
	if err := os.WriteFile(filepath.Join(f.cache.Dir(), "orders.json"), []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.UpdateStatus(ctx, 2); err != nil {
		t.Fatalf("UpdateStatus on legacy entry failed: %v", err)
	}

	cached := f.cachedOrders(t)
	if len(cached) != 2 {
		t.Fatalf("Expected 2 surviving entries, got %+v", cached)
	}
	if cached[0].ID != 1 || cached[0].CustomerName != "Ana" || cached[0].Status != model.StatusReady {
		t.Errorf("Unexpected first entry %+v", cached[0])
	}
	if cached[1].ID != 2 || cached[1].Status != model.StatusReady {
		t.Errorf("Unexpected second entry %+v", cached[1])
	}
}

func TestNonListCacheTreatedAsCold(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(filepath.Join(f.cache.Dir(), "orders.json"), []byte(`{"orders": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	ord := f.create(t, "Ana")

	cached := f.cachedOrders(t)
	if len(cached) != 1 || cached[0].ID != ord.ID {
		t.Errorf("Expected fresh single-element list, got %+v", cached)
	}
}

func TestPublishedVersionsFollowCommitOrder(t *testing.T) {
	f := newFixture(t)

	const n = 12
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.svc.CreateOrder(context.Background(), model.CreateOrderRequest{CustomerName: "Guest " + string(rune('A'+i))})
		}(i)
	}
	wg.Wait()

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	if len(f.pub.versions) != n {
		t.Fatalf("Expected %d publishes, got %d", n, len(f.pub.versions))
	}
	seen := make(map[uint64]bool, n)
	for i, v := range f.pub.versions {
		// Each create adds one order, so version k carries exactly k orders.
		if got := len(f.pub.lists[i]); uint64(got) != v {
			t.Errorf("Version %d carries %d orders", v, got)
		}
		if seen[v] {
			t.Errorf("Version %d published twice", v)
		}
		seen[v] = true
	}
}
