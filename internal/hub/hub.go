package hub

import (
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"lobby/internal/model"
)

const (
	defaultBuffer      = 16
	defaultSendTimeout = 2 * time.Second
)

// Subscription is one live consumer of order-list events.
type Subscription struct {
	id     string
	events chan model.Event
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) ID() string { return s.id }

// Events delivers published events. It is never closed; select on Done as well.
func (s *Subscription) Events() <-chan model.Event { return s.events }

// Done is closed once the subscription has been removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() bool {
	closed := false
	s.once.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}

type Options struct {
	// Buffer is the per-subscriber event queue length.
	Buffer int
	// SendTimeout bounds how long Publish waits on a subscriber whose queue is full.
	SendTimeout time.Duration
	Logger      *log.Logger
}

// Hub fans out order-list changes to every registered subscriber.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*Subscription

	// publishMu orders deliveries; lastVersion is guarded by it.
	publishMu   sync.Mutex
	lastVersion uint64

	buffer      int
	sendTimeout time.Duration
	logger      *log.Logger
	now         func() time.Time
}

func New(opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		subs:        make(map[string]*Subscription),
		buffer:      opts.Buffer,
		sendTimeout: opts.SendTimeout,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan model.Event, h.buffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	h.logger.Printf("Subscriber %v connected, %d active", sub.id, count)
	return sub
}

// Unsubscribe removes sub. Calling it more than once is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if cur, ok := h.subs[sub.id]; ok && cur == sub {
		delete(h.subs, sub.id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if sub.close() {
		h.logger.Printf("Subscriber %v disconnected, %d active", sub.id, count)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends an ORDERS_UPDATED event with orders to every subscriber and
// returns how many received it. A subscriber whose queue stays full for the
// send timeout is dropped; others are not held up by it.
//
// Publishes are delivered one at a time. A version at or below the last one
// delivered is stale and skipped, so subscribers never see an older list
// after a newer one. Version 0 is unversioned and always delivered.
func (h *Hub) Publish(version uint64, orders []model.Order) int {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	if version != 0 {
		if version <= h.lastVersion {
			h.logger.Printf("Skipping stale order list version %d, already at %d", version, h.lastVersion)
			return 0
		}
		h.lastVersion = version
	}

	ev := model.NewOrdersUpdated(orders, h.now())

	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	var (
		delivered int
		slow      []*Subscription
	)
	for _, sub := range subs {
		select {
		case <-sub.done:
		case sub.events <- ev:
			delivered++
		default:
			slow = append(slow, sub)
		}
	}
	if len(slow) == 0 {
		return delivered
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, sub := range slow {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			timer := time.NewTimer(h.sendTimeout)
			defer timer.Stop()

			select {
			case sub.events <- ev:
				mu.Lock()
				delivered++
				mu.Unlock()
			case <-sub.done:
			case <-timer.C:
				h.logger.Printf("Subscriber %v stalled for %v, dropping it", sub.id, h.sendTimeout)
				h.Unsubscribe(sub)
			}
		}(sub)
	}
	wg.Wait()
	return delivered
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
