package realtime

import (
	"context"
	"sync"
)

type deferredEventsKey struct{}

type pendingEvent struct {
	publisher Publisher
	event     ChangeEvent
}

type deferredEvents struct {
	mu      sync.Mutex
	pending []pendingEvent
}

func (d *deferredEvents) add(publisher Publisher, event ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, pendingEvent{publisher: publisher, event: event})
}

func (d *deferredEvents) drain() []pendingEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.pending
	d.pending = nil
	return pending
}

// DeferEvents returns a context under which the Notifier buffers change events
// instead of publishing them. Wrap a transaction with it and call release once
// the transaction returns: release(true) publishes the buffer in order,
// release(false) drops it. Nested calls join the outermost buffer and their
// release is a no-op.
func DeferEvents(ctx context.Context) (context.Context, func(committed bool)) {
	if _, ok := ctx.Value(deferredEventsKey{}).(*deferredEvents); ok {
		return ctx, func(bool) {}
	}
	buffer := &deferredEvents{}
	return context.WithValue(ctx, deferredEventsKey{}, buffer), func(committed bool) {
		pending := buffer.drain()
		if !committed {
			return
		}
		for _, item := range pending {
			publishedEventCount.WithLabelValues(item.event.Table, string(item.event.Type)).Inc()
			item.publisher.Publish(item.event)
		}
	}
}

func deferredFrom(ctx context.Context) *deferredEvents {
	if ctx == nil {
		return nil
	}
	buffer, _ := ctx.Value(deferredEventsKey{}).(*deferredEvents)
	return buffer
}
