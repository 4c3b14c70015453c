package realtime

import (
	"context"
	"sync"
)

const defaultBufferSize = 32

// Hub fans change events out to filtered subscribers. Publish never blocks;
// a subscriber whose buffer is full misses the event.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	filter Filter
	stream chan ChangeEvent
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers filter and returns the event stream together with a
// cleanup func. The subscription also ends when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (<-chan ChangeEvent, func()) {
	if filter.Table == "" {
		ch := make(chan ChangeEvent)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		filter: filter,
		stream: make(chan ChangeEvent, h.bufferSize),
	}
	h.register(sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.unregister(filter.Table, sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers event to every matching subscriber.
func (h *Hub) Publish(event ChangeEvent) {
	if event.Table == "" || event.Type == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers[event.Table] {
		if !sub.filter.Matches(event) {
			continue
		}
		select {
		case sub.stream <- event:
		default:
			droppedEventCount.WithLabelValues(event.Table).Inc()
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}

func (h *Hub) register(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub.id = h.nextID
	if _, ok := h.subscribers[sub.filter.Table]; !ok {
		h.subscribers[sub.filter.Table] = make(map[int64]*subscriber)
	}
	h.subscribers[sub.filter.Table][sub.id] = sub
	subscriberGauge.Inc()
}

func (h *Hub) unregister(table string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[table]
	if _, ok := subs[id]; !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.subscribers, table)
	}
	subscriberGauge.Dec()
}
