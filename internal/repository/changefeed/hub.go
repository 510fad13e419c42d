// Package changefeed fans change notifications for a collection out to live subscriptions.
// Each subscription owns one goroutine that reloads its snapshot and hands it to the callback;
// notifications arriving while a reload is running collapse into a single follow-up reload.
package changefeed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// LoadFunc reloads a subscription's snapshot and delivers it to the subscriber. It should check
// sub.Stopped() after loading and skip delivery when the subscriber has gone away.
type LoadFunc func(ctx context.Context, sub *Subscription) error

// Hub routes collection change notifications to subscriptions.
type Hub struct {
	logger      *slog.Logger
	loadTimeout time.Duration

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewHub returns an empty Hub. loadTimeout bounds each snapshot reload.
func NewHub(logger *slog.Logger, loadTimeout time.Duration) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if loadTimeout <= 0 {
		loadTimeout = 10 * time.Second
	}
	return &Hub{
		logger:      logger,
		loadTimeout: loadTimeout,
		subs:        make(map[uint64]*Subscription),
	}
}

// Subscription is a live registration on one collection.
type Subscription struct {
	hub        *Hub
	id         uint64
	collection string
	load       LoadFunc
	kick       chan struct{}
	done       chan struct{}
	exited     chan struct{}
	stopped    atomic.Bool
	once       sync.Once
}

// Subscribe registers load for changes to collection. load runs once immediately and again after
// every Publish for the collection until Unsubscribe.
func (h *Hub) Subscribe(collection string, load LoadFunc) *Subscription {
	s := &Subscription{
		hub:        h,
		collection: collection,
		load:       load,
		kick:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		exited:     make(chan struct{}),
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.stopped.Store(true)
		close(s.done)
		close(s.exited)
		return s
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	h.mu.Unlock()

	s.kick <- struct{}{}
	go s.run()
	return s
}

// Publish notifies every subscription on collection that it changed.
func (h *Hub) Publish(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.collection != collection {
			continue
		}
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.closed = true
	h.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (s *Subscription) run() {
	defer close(s.exited)
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
			if s.stopped.Load() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.hub.loadTimeout)
			if err := s.load(ctx, s); err != nil {
				s.hub.logger.Warn("changefeed reload failed", "collection", s.collection, "err", err)
			}
			cancel()
		}
	}
}

// Unsubscribe stops further callbacks and releases the subscription goroutine. A callback that is
// already running is allowed to finish. Safe to call more than once, including from a callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}

// Stopped reports whether Unsubscribe has been called.
func (s *Subscription) Stopped() bool {
	return s.stopped.Load()
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.exited
}
