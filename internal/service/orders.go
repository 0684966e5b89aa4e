package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"lobby/internal/cache"
	"lobby/internal/db"
	"lobby/internal/model"
)

// Cache is the file-backed store the service treats as the live queue.
type Cache interface {
	Lock(key cache.Key) (unlock func())
	Load(key cache.Key) (json.RawMessage, bool)
	LoadInto(key cache.Key, v any) bool
	Save(key cache.Key, value any) error
	Dir() string
}

// Publisher receives the full order list after every successful mutation.
type Publisher interface {
	Publish(version uint64, orders []model.Order) int
}

// versioned is a committed order list and its position in commit order.
type versioned struct {
	seq    uint64
	orders []model.Order
}

// OrderService keeps the cached order list authoritative. The record store
// assigns ids and is kept in sync best-effort; it is only read when the
// cache has never been populated.
type OrderService struct {
	store     db.OrderStore
	cache     Cache
	publisher Publisher
	validate  *validator.Validate
	logger    *log.Logger
	now       func() time.Time
	// zone reads legacy date-times that were written without an offset.
	zone *time.Location

	cacheWriteFailures atomic.Int64
	// seq is only advanced while the orders key is locked.
	seq atomic.Uint64
}

func NewOrderService(store db.OrderStore, c Cache, publisher Publisher, validate *validator.Validate, logger *log.Logger) *OrderService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &OrderService{
		store:     store,
		cache:     c,
		publisher: publisher,
		validate:  validate,
		logger:    logger,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Millisecond)
		},
		zone: time.Local,
	}
}

// CreateOrder validates the name, obtains an id from the record store and
// appends the new order to the cached list.
func (s *OrderService) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (model.Order, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := s.validate.Struct(req); err != nil {
		return model.Order{}, newValidationError(err)
	}

	ord, snapshot, err := s.createLocked(ctx, req.CustomerName)
	if err != nil {
		return model.Order{}, err
	}
	s.publish(snapshot)
	return ord, nil
}

func (s *OrderService) createLocked(ctx context.Context, name string) (model.Order, versioned, error) {
	defer s.cache.Lock(cache.KeyOrders)()

	orders, cached := s.loadOrders()

	now := s.now()
	if n := len(orders); n > 0 && now.Before(orders[n-1].CreatedAt) {
		now = orders[n-1].CreatedAt
	}

	ord, err := s.store.Create(ctx, name, now)
	if err != nil {
		return model.Order{}, versioned{}, fmt.Errorf("create order: %w", err)
	}

	if cached {
		orders = append(orders, ord)
	} else {
		orders = []model.Order{ord}
	}
	s.saveOrders(orders)

	s.logger.Printf("Order %d created for %q, %d in queue", ord.ID, ord.CustomerName, len(orders))
	return ord, s.stamp(orders), nil
}

// UpdateStatus marks the order READY. Marking an already READY order is a no-op
// apart from updatedAt.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64) (model.Order, error) {
	ord, snapshot, err := s.updateLocked(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	s.publish(snapshot)
	return ord, nil
}

func (s *OrderService) updateLocked(ctx context.Context, id int64) (model.Order, versioned, error) {
	defer s.cache.Lock(cache.KeyOrders)()

	orders, cached := s.loadOrders()
	if !cached {
		return s.updateFromStore(ctx, id)
	}

	idx := indexOf(orders, id)
	if idx < 0 {
		s.logger.Printf("Order %d not in cache, available: %v", id, ids(orders))
		return model.Order{}, versioned{}, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	if err := orders[idx].MarkReady(s.now()); err != nil {
		return model.Order{}, versioned{}, err
	}
	s.saveOrders(orders)

	if _, err := s.store.UpdateStatus(ctx, id, model.StatusReady, orders[idx].UpdatedAt); err != nil {
		s.logger.Printf("Record store not updated for order %d: %v", id, err)
	}

	s.logger.Printf("Order %d marked ready", id)
	return orders[idx], s.stamp(orders), nil
}

// updateFromStore is the cold-start path: mutate the record store, then
// populate the cache from its full snapshot.
func (s *OrderService) updateFromStore(ctx context.Context, id int64) (model.Order, versioned, error) {
	ord, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Order{}, versioned{}, s.storeLookupError(id, err)
	}
	if err := ord.MarkReady(s.now()); err != nil {
		return model.Order{}, versioned{}, err
	}
	updated, err := s.store.UpdateStatus(ctx, id, ord.Status, ord.UpdatedAt)
	if err != nil {
		return model.Order{}, versioned{}, s.storeLookupError(id, err)
	}

	snapshot := s.repopulate(ctx)
	s.logger.Printf("Order %d marked ready via record store", id)
	return updated, s.stamp(snapshot), nil
}

// RemoveOrder deletes the order from the queue. This is the one path that may
// leave an empty list on disk.
func (s *OrderService) RemoveOrder(ctx context.Context, id int64) error {
	snapshot, err := s.removeLocked(ctx, id)
	if err != nil {
		return err
	}
	s.publish(snapshot)
	return nil
}

func (s *OrderService) removeLocked(ctx context.Context, id int64) (versioned, error) {
	defer s.cache.Lock(cache.KeyOrders)()

	orders, cached := s.loadOrders()
	if !cached {
		if err := s.store.Delete(ctx, id); err != nil {
			return versioned{}, s.storeLookupError(id, err)
		}
		s.logger.Printf("Order %d removed via record store", id)
		return s.stamp(s.repopulate(ctx)), nil
	}

	idx := indexOf(orders, id)
	if idx < 0 {
		s.logger.Printf("Order %d not in cache, available: %v", id, ids(orders))
		return versioned{}, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	remaining := make([]model.Order, 0, len(orders)-1)
	remaining = append(remaining, orders[:idx]...)
	remaining = append(remaining, orders[idx+1:]...)
	s.saveOrders(remaining)

	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Printf("Record store not updated for removed order %d: %v", id, err)
	}

	s.logger.Printf("Order %d removed, %d left", id, len(remaining))
	return s.stamp(remaining), nil
}

// ListOrders returns the queue in creation order. It never writes the cache.
func (s *OrderService) ListOrders(ctx context.Context) ([]model.Order, error) {
	if orders, ok := s.loadOrders(); ok {
		return orders, nil
	}
	orders, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListOrdersByStatus(ctx context.Context, status model.Status) ([]model.Order, error) {
	if orders, ok := s.loadOrders(); ok {
		return model.FilterByStatus(orders, status), nil
	}
	orders, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}
	return orders, nil
}

// CacheWriteFailures counts cache writes that failed since start. Callers of
// the mutating operations are not told; this is the degraded-durability signal.
func (s *OrderService) CacheWriteFailures() int64 {
	return s.cacheWriteFailures.Load()
}

func (s *OrderService) CacheDirectory() string {
	return s.cache.Dir()
}

// loadOrders reports false when the cache is cold or does not hold a list.
func (s *OrderService) loadOrders() ([]model.Order, bool) {
	raw, ok := s.cache.Load(cache.KeyOrders)
	if !ok {
		return nil, false
	}
	orders, err := decodeOrders(raw, s.zone, s.logger)
	if err != nil {
		s.logger.Printf("Ignoring orders cache: %v", err)
		return nil, false
	}
	return orders, true
}

func (s *OrderService) saveOrders(orders []model.Order) {
	if orders == nil {
		orders = []model.Order{}
	}
	if err := s.cache.Save(cache.KeyOrders, orders); err != nil {
		s.cacheWriteFailures.Add(1)
		s.logger.Printf("Failed to save orders cache (%d orders): %v", len(orders), err)
	}
}

// repopulate writes the record store's full snapshot to the cache. A nil
// result means the snapshot could not be read.
func (s *OrderService) repopulate(ctx context.Context) []model.Order {
	snapshot, err := s.store.List(ctx)
	if err != nil {
		s.logger.Printf("Failed to read record store snapshot: %v", err)
		return nil
	}
	s.saveOrders(snapshot)
	return snapshot
}

// stamp versions a committed list. Callers must hold the orders key lock.
func (s *OrderService) stamp(orders []model.Order) versioned {
	if orders == nil {
		return versioned{}
	}
	return versioned{seq: s.seq.Add(1), orders: orders}
}

func (s *OrderService) publish(v versioned) {
	if s.publisher == nil || v.orders == nil {
		return
	}
	n := s.publisher.Publish(v.seq, v.orders)
	s.logger.Printf("Published version %d with %d orders to %d subscribers", v.seq, len(v.orders), n)
}

func (s *OrderService) storeLookupError(id int64, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return fmt.Errorf("order %d: %w", id, err)
}

func indexOf(orders []model.Order, id int64) int {
	for i := range orders {
		if orders[i].ID == id {
			return i
		}
	}
	return -1
}

func ids(orders []model.Order) []int64 {
	out := make([]int64, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
